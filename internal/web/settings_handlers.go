// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type settingsResponse struct {
	Success  bool              `json:"success"`
	Settings map[string]string `json:"settings"`
	UserType string            `json:"userType"`
}

func (s *Server) handleGetSettings(c *gin.Context) {
	session := sessionFrom(c)
	view, err := s.settings.View(c.Request.Context(), session.Role)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsResponse{
		Success:  true,
		Settings: view.Settings,
		UserType: view.Role.String(),
	})
}

type updateSettingsRequest struct {
	Settings map[string]string `json:"settings"`
}

type updateSettingsResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	UpdatedCount int    `json:"updatedCount"`
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Settings == nil {
		s.abortWithError(c, badRequest("settings must be an object of string values"))
		return
	}

	count, err := s.settings.Update(c.Request.Context(), req.Settings)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updateSettingsResponse{Success: true, Message: "settings updated", UpdatedCount: count})
}
