// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lovelog/lovelog/internal/auth"
)

type couplePasswordView struct {
	IsSet     bool       `json:"isSet"`
	UpdatedAt *time.Time `json:"updatedAt"`
}

type visitorPasswordView struct {
	IsSet     bool       `json:"isSet"`
	UpdatedAt *time.Time `json:"updatedAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	IsExpired bool       `json:"isExpired"`
	HoursLeft int        `json:"hoursLeft"`
}

type encryptionKeyView struct {
	IsSet       bool       `json:"isSet"`
	Fingerprint *string    `json:"fingerprint"`
	UpdatedAt   *time.Time `json:"updatedAt"`
}

type passwordStatusView struct {
	CouplePassword  couplePasswordView  `json:"couplePassword"`
	VisitorPassword visitorPasswordView `json:"visitorPassword"`
	EncryptionKey   encryptionKeyView   `json:"encryptionKey"`
}

type passwordStatusResponse struct {
	Success bool               `json:"success"`
	Status  passwordStatusView `json:"status"`
}

func (s *Server) handlePasswordStatus(c *gin.Context) {
	status, err := s.passwords.Status(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	view := passwordStatusView{
		CouplePassword: couplePasswordView{
			IsSet:     status.Couple.IsSet,
			UpdatedAt: utcPtr(status.Couple.UpdatedAt),
		},
		VisitorPassword: visitorPasswordView{
			IsSet:     status.Visitor.IsSet,
			UpdatedAt: utcPtr(status.Visitor.UpdatedAt),
			ExpiresAt: utcPtr(status.Visitor.ExpiresAt),
			IsExpired: status.Visitor.IsExpired,
			HoursLeft: status.Visitor.HoursLeft,
		},
		EncryptionKey: encryptionKeyView{
			IsSet:     status.EncryptionKey.IsSet,
			UpdatedAt: utcPtr(status.EncryptionKey.UpdatedAt),
		},
	}
	if status.EncryptionKey.IsSet {
		fp := status.EncryptionKey.Fingerprint
		view.EncryptionKey.Fingerprint = &fp
	}

	c.JSON(http.StatusOK, passwordStatusResponse{Success: true, Status: view})
}

type changeCoupleRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangeCouple(c *gin.Context) {
	var req changeCoupleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, badRequest("request body must be JSON with currentPassword and newPassword"))
		return
	}

	if err := s.passwords.ChangeCouplePassword(c.Request.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "couple password changed"})
}

type setVisitorRequest struct {
	Password    string `json:"password"`
	ExpiryHours *int   `json:"expiryHours"`
}

type visitorGrantResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Password    string    `json:"password,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ExpiryHours int       `json:"expiryHours"`
}

func (s *Server) handleSetVisitor(c *gin.Context) {
	var req setVisitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, badRequest("request body must be JSON with a password field"))
		return
	}

	grant, err := s.passwords.SetVisitorPassword(c.Request.Context(), req.Password, intOr(req.ExpiryHours, auth.DefaultVisitorHours))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, visitorGrantResponse{
		Success:     true,
		Message:     "visitor password set",
		ExpiresAt:   grant.ExpiresAt.UTC(),
		ExpiryHours: grant.Hours,
	})
}

type generateVisitorRequest struct {
	ExpiryHours *int `json:"expiryHours"`
	Length      *int `json:"length"`
}

func (s *Server) handleGenerateVisitor(c *gin.Context) {
	var req generateVisitorRequest
	// An empty body takes every default.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.abortWithError(c, badRequest("request body must be JSON"))
		return
	}

	grant, err := s.passwords.GenerateVisitorPassword(c.Request.Context(),
		intOr(req.ExpiryHours, auth.DefaultVisitorHours),
		intOr(req.Length, auth.DefaultGeneratedLength),
	)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, visitorGrantResponse{
		Success:     true,
		Message:     "visitor password generated",
		Password:    grant.Password,
		ExpiresAt:   grant.ExpiresAt.UTC(),
		ExpiryHours: grant.Hours,
	})
}

type revokeResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	SessionsEnded int64  `json:"sessionsEnded"`
}

func (s *Server) handleRevokeVisitor(c *gin.Context) {
	ended, err := s.passwords.RevokeVisitorPassword(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, revokeResponse{Success: true, Message: "visitor password revoked", SessionsEnded: ended})
}

type historyItemView struct {
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"createdAt"`
	DisplayName string    `json:"displayName"`
}

type historyResponse struct {
	Success bool              `json:"success"`
	History []historyItemView `json:"history"`
}

func (s *Server) handleHistory(c *gin.Context) {
	items, err := s.passwords.History(c.Request.Context(), auth.HistoryLimit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	history := make([]historyItemView, 0, len(items))
	for _, item := range items {
		history = append(history, historyItemView{
			Type:        item.Role.String(),
			CreatedAt:   item.CreatedAt.UTC(),
			DisplayName: item.Role.DisplayName(),
		})
	}
	c.JSON(http.StatusOK, historyResponse{Success: true, History: history})
}

type encryptionKeyResponse struct {
	Success     bool      `json:"success"`
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s *Server) handleRegenerateKey(c *gin.Context) {
	key, err := s.passwords.RegenerateEncryptionKey(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, encryptionKeyResponse{
		Success:     true,
		Key:         key.Value,
		Fingerprint: key.Fingerprint(),
		UpdatedAt:   key.UpdatedAt.UTC(),
	})
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
