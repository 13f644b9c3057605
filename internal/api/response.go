package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Proton-105/account-ledger/internal/errors"
)

// Response is the envelope of every API reply.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: "OK", Message: "success", Data: data})
}

func paramError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: "E000", Message: message})
}

// statusFor maps an outcome kind to the HTTP status reported for it.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidID, apperrors.KindPlayerNotFound:
		return http.StatusNotFound
	case apperrors.KindInsufficientCoins, apperrors.KindValueOverflow:
		return http.StatusConflict
	case apperrors.KindInvalidEmail, apperrors.KindInvalidPassword,
		apperrors.KindInvalidAccountType, apperrors.KindInvalidLastDay:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}
