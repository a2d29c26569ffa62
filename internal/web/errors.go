// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/lovelog/lovelog/internal/auth"
	"github.com/lovelog/lovelog/pkg/errutil"
)

// Codes the transport adds on top of the auth codes.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

const internalMessage = "internal server error"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// statusFor maps an error to its HTTP status and public code.
// Anything not listed is an internal error.
func statusFor(err error) (int, string) {
	switch code := errutil.Code(err); code {
	case auth.CodeValidation:
		return http.StatusBadRequest, code
	case auth.CodeAuthenticationRequired, auth.CodeInvalidCredentials, auth.CodeVisitorExpired:
		return http.StatusUnauthorized, code
	case auth.CodeInsufficientPermissions:
		return http.StatusForbidden, code
	}
	if errors.Is(err, auth.ErrNotFound) {
		return http.StatusNotFound, CodeNotFound
	}
	return http.StatusInternalServerError, CodeInternal
}

// abortWithError writes the error body and stops the handler chain.
// Internal errors are logged with full context and answered with a generic message.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)

	body := errorResponse{Error: publicMessage(err), Code: code}
	if status == http.StatusInternalServerError {
		errutil.LogError(c.Request.Context(), s.logger, "request failed", err)
		body.Error = internalMessage
	} else {
		body.Details = details(err)
	}

	c.AbortWithStatusJSON(status, body)
}

// publicMessage is the outermost message of err without its wrapped causes.
func publicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg := oopsErr.Public(); msg != "" {
			return msg
		}
	}
	if errors.Is(err, auth.ErrNotFound) {
		return "not found"
	}
	return err.Error()
}

func details(err error) []string {
	v, ok := errutil.Context(err)[auth.DetailsKey]
	if !ok {
		return nil
	}
	switch d := v.(type) {
	case []string:
		return d
	case string:
		return []string{d}
	default:
		return []string{fmt.Sprint(d)}
	}
}

func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	s.abortWithError(c, oops.Code("WEB_PANIC").Errorf("panic: %v", recovered))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Error: "not found", Code: CodeNotFound})
}

func (s *Server) handleNoMethod(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Code: CodeMethodNotAllowed})
}
