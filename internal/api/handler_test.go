package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/i18n"
	"github.com/Proton-105/account-ledger/internal/idempotency"
	"github.com/Proton-105/account-ledger/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Apply(ctx context.Context, req ledger.Request) (ledger.Balances, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledger.Balances), args.Error(1)
}

func (m *mockLedger) Balances(ctx context.Context, accountID uint32) (ledger.Balances, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(ledger.Balances), args.Error(1)
}

func (m *mockLedger) Players(ctx context.Context, accountID uint32) ([]account.Player, error) {
	args := m.Called(ctx, accountID)
	players, _ := args.Get(0).([]account.Player)
	return players, args.Error(1)
}

func newRouter(t *testing.T) (http.Handler, *mockLedger) {
	t.Helper()

	l := &mockLedger{}
	t.Cleanup(func() { l.AssertExpectations(t) })

	log := testLogger()
	return NewRouter(NewHandler(l, apperrors.NewHandler(log, false), log), log), l
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestApplyCoins_PassesRequest(t *testing.T) {
	h, l := newRouter(t)

	l.On("Apply", mock.Anything, ledger.Request{
		AccountID:   12,
		Operation:   account.TransactionRemove,
		CoinType:    account.CoinTypeTournament,
		Amount:      30,
		Description: "arena entry",
		RequestID:   "req-7",
	}).Return(ledger.Balances{AccountID: 12, Coins: 5, TournamentCoins: 70}, nil).Once()

	rec, resp := do(t, h, http.MethodPost, "/api/v1/accounts/12/coins",
		`{"operation":"remove","coin_type":"tournament","amount":30,"description":"arena entry"}`,
		map[string]string{IdempotencyHeader: "req-7"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", resp.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestApplyCoins_MapsLedgerErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "insufficient", err: apperrors.New(apperrors.KindInsufficientCoins, "insufficient coins"), status: http.StatusConflict, code: "E600"},
		{name: "overflow", err: apperrors.New(apperrors.KindValueOverflow, "overflow"), status: http.StatusConflict, code: "E601"},
		{name: "missing account", err: apperrors.New(apperrors.KindInvalidID, "account not found"), status: http.StatusNotFound, code: "E103"},
		{name: "database", err: apperrors.New(apperrors.KindDatabase, "down"), status: http.StatusServiceUnavailable, code: "E200"},
		{name: "reused idempotency key", err: apperrors.Wrap(apperrors.KindDatabase, idempotency.ErrFingerprintMismatch, "apply"), status: http.StatusUnprocessableEntity, code: "E422"},
		{name: "unknown first outcome", err: apperrors.Wrap(apperrors.KindDatabase, idempotency.ErrOutcomeUnknown, "apply"), status: http.StatusConflict, code: "E409"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, l := newRouter(t)
			l.On("Apply", mock.Anything, mock.Anything).Return(ledger.Balances{}, tt.err).Once()

			rec, resp := do(t, h, http.MethodPost, "/api/v1/accounts/3/coins", `{"operation":"add","coin_type":"coin","amount":1}`, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestApplyCoins_LocalizesErrors(t *testing.T) {
	translations, err := i18n.Load("en")
	require.NoError(t, err)

	l := &mockLedger{}
	t.Cleanup(func() { l.AssertExpectations(t) })
	log := testLogger()
	h := NewRouter(NewHandler(l, apperrors.NewHandler(log, false), log, WithTranslations(translations)), log)

	l.On("Apply", mock.Anything, mock.Anything).Return(ledger.Balances{}, apperrors.New(apperrors.KindInsufficientCoins, "insufficient coins")).Twice()
	body := `{"operation":"remove","coin_type":"coin","amount":1}`

	_, resp := do(t, h, http.MethodPost, "/api/v1/accounts/3/coins", body, map[string]string{"Accept-Language": "ru-RU,ru;q=0.9"})
	assert.Equal(t, "Недостаточно монет.", resp.Message)

	_, resp = do(t, h, http.MethodPost, "/api/v1/accounts/3/coins", body, map[string]string{"Accept-Language": "de"})
	assert.Equal(t, "Not enough coins.", resp.Message)
}

func TestApplyCoins_ValidatesInput(t *testing.T) {
	h, _ := newRouter(t)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/accounts/0/coins", `{"operation":"add","coin_type":"coin","amount":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/accounts/3/coins", `{"operation":"steal","coin_type":"coin","amount":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/accounts/3/coins", `{"operation":"add","coin_type":"coin","amount":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBalancesAndPlayers(t *testing.T) {
	h, l := newRouter(t)

	l.On("Balances", mock.Anything, uint32(4)).Return(ledger.Balances{AccountID: 4, Coins: 9}, nil).Once()
	rec, resp := do(t, h, http.MethodGet, "/api/v1/accounts/4/balances", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(9), data["coins"])

	deletion := time.Unix(1710000000, 0).UTC()
	l.On("Players", mock.Anything, uint32(4)).Return([]account.Player{
		{Name: "Aldor"},
		{Name: "Mirela", Deletion: deletion},
	}, nil).Once()
	rec, resp = do(t, h, http.MethodGet, "/api/v1/accounts/4/players", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	players, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, players, 2)
	second := players[1].(map[string]any)
	assert.Equal(t, "Mirela", second["name"])
	assert.Equal(t, true, second["scheduled_for_deletion"])
}
