// Package api exposes the ledger service over HTTP for operators and other
// backend services.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/i18n"
	"github.com/Proton-105/account-ledger/internal/idempotency"
	"github.com/Proton-105/account-ledger/internal/ledger"
	"github.com/Proton-105/account-ledger/pkg/logger"
)

// IdempotencyHeader carries the caller's request id for coin operations.
const IdempotencyHeader = "Idempotency-Key"

// Ledger is the subset of *ledger.Service served here.
type Ledger interface {
	Apply(ctx context.Context, req ledger.Request) (ledger.Balances, error)
	Balances(ctx context.Context, accountID uint32) (ledger.Balances, error)
	Players(ctx context.Context, accountID uint32) ([]account.Player, error)
}

type Handler struct {
	ledger Ledger
	errs   *apperrors.Handler
	i18n   *i18n.Manager
	log    *slog.Logger
}

type HandlerOption func(*Handler)

// WithTranslations localizes error messages by the Accept-Language header.
func WithTranslations(m *i18n.Manager) HandlerOption {
	return func(h *Handler) { h.i18n = m }
}

func NewHandler(l Ledger, errs *apperrors.Handler, log *slog.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if errs == nil {
		errs = apperrors.NewHandler(log, false)
	}

	h := &Handler{ledger: l, errs: errs, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CoinOperationRequest is the body of POST /accounts/:id/coins.
type CoinOperationRequest struct {
	Operation   string `json:"operation" binding:"required,oneof=add remove"`
	CoinType    string `json:"coin_type" binding:"required,oneof=coin tournament"`
	Amount      uint32 `json:"amount" binding:"required,gt=0"`
	Description string `json:"description" binding:"max=255"`
}

type playerView struct {
	Name                 string `json:"name"`
	ScheduledForDeletion bool   `json:"scheduled_for_deletion"`
	Deletion             int64  `json:"deletion,omitempty"`
}

// GetBalances handles GET /api/v1/accounts/:id/balances.
func (h *Handler) GetBalances(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	balances, err := h.ledger.Balances(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	success(c, balances)
}

// GetPlayers handles GET /api/v1/accounts/:id/players.
func (h *Handler) GetPlayers(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	players, err := h.ledger.Players(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]playerView, 0, len(players))
	for _, p := range players {
		v := playerView{Name: p.Name, ScheduledForDeletion: p.ScheduledForDeletion()}
		if v.ScheduledForDeletion {
			v.Deletion = p.Deletion.Unix()
		}
		views = append(views, v)
	}

	success(c, views)
}

// ApplyCoins handles POST /api/v1/accounts/:id/coins.
func (h *Handler) ApplyCoins(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req CoinOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		paramError(c, "invalid request: "+err.Error())
		return
	}

	op := account.TransactionAdd
	if req.Operation == "remove" {
		op = account.TransactionRemove
	}
	coinType := account.CoinTypeCoin
	if req.CoinType == "tournament" {
		coinType = account.CoinTypeTournament
	}

	balances, err := h.ledger.Apply(c.Request.Context(), ledger.Request{
		AccountID:   id,
		Operation:   op,
		CoinType:    coinType,
		Amount:      req.Amount,
		Description: req.Description,
		RequestID:   c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	success(c, balances)
}

func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	message, retryable := h.errs.Handle(ctx, err)

	var appErr *apperrors.AppError
	code := "E500"
	if errors.As(err, &appErr) && appErr.Code != "" {
		code = appErr.Code
	}

	status := statusFor(apperrors.KindOf(err))
	switch {
	case errors.Is(err, idempotency.ErrFingerprintMismatch):
		status, code = http.StatusUnprocessableEntity, "E422"
		message = "The idempotency key was already used for a different coin operation."
	case errors.Is(err, idempotency.ErrOutcomeUnknown):
		status, code = http.StatusConflict, "E409"
		message = "The outcome of the first attempt with this idempotency key is unknown; check the balance before retrying with a new key."
	}

	if h.i18n != nil {
		if localized, ok := h.i18n.Negotiate(c.GetHeader("Accept-Language")).Lookup("errors." + code); ok {
			message = localized
		}
	}

	if retryable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, Response{Code: code, Message: message, Data: gin.H{
		"correlation_id": logger.CorrelationIDFromContext(ctx),
	}})
}

func accountID(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		paramError(c, "account id must be a positive 32-bit integer")
		return 0, false
	}
	return uint32(id), true
}
