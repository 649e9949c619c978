package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/handler"
	"github.com/boddenberg/mazebank-go/internal/infra/cache"
	"github.com/boddenberg/mazebank-go/internal/infra/memory"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type api struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.New()
	clock := service.SystemClock{Location: time.UTC}
	actors := cache.New[domain.Actor](time.Minute)
	t.Cleanup(actors.Close)

	auth := service.NewAuthService(store.Users(), "flow-test-secret", time.Hour, clock, logger)
	require.NoError(t, auth.SeedEmployee(context.Background(), "admin@mazebank.nl", "Admin#1234"))

	engine := service.NewTransferEngine(store, store.Accounts(), store.Transactions(), clock, metrics, logger)
	router := handler.NewRouter(handler.Deps{
		Auth:         auth,
		Accounts:     service.NewAccountService(store, store.Accounts(), store.Users(), engine, clock, logger),
		Users:        service.NewUserService(store, store.Users(), store.Accounts(), actors, logger),
		Transactions: service.NewTransactionService(engine, store.Transactions(), store.Accounts(), store.Users(), logger),
		UserStore:    store.Users(),
		Actors:       actors,
		Store:        store,
		StoreName:    "memory",
		Location:     time.UTC,
		Metrics:      metrics,
		Logger:       logger,
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *api) register(email, bsn, first string) domain.AuthResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email":       email,
		"bsn":         bsn,
		"firstName":   first,
		"lastName":    "Tester",
		"password":    "Secret#123",
		"phoneNumber": "0612345678",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.AuthResponse](a.t, rec)
}

func (a *api) openChecking(token string, userID int64) domain.Account {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/accounts", token, map[string]any{
		"userId":      userID,
		"accountType": "CHECKING",
		"active":      true,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Account](a.t, rec)
}

// TestAPI_FullFlow drives registration, account creation and money movement
// through the HTTP layer.
func TestAPI_FullFlow(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "admin@mazebank.nl", "password": "Admin#1234"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	admin := decode[domain.AuthResponse](t, rec)
	assert.Equal(t, domain.RoleEmployee, admin.Role)

	jane := a.register("jane@example.com", "123456789", "Jane")
	john := a.register("john@example.com", "987654321", "John")

	// Customers cannot open accounts.
	rec = a.do(http.MethodPost, "/v1/accounts", jane.Token, map[string]any{"userId": jane.UserID, "accountType": "CHECKING"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	janeAcc := a.openChecking(admin.Token, jane.UserID)
	johnAcc := a.openChecking(admin.Token, john.UserID)

	rec = a.do(http.MethodPost, fmt.Sprintf("/v1/accounts/%d/deposit", janeAcc.ID), jane.Token, map[string]any{"amount": 1000, "description": "salary"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/transactions", jane.Token, map[string]any{
		"senderIban":   janeAcc.IBAN,
		"receiverIban": johnAcc.IBAN,
		"amount":       100,
		"description":  "dinner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	transfer := decode[domain.Transaction](t, rec)
	assert.Equal(t, domain.TransactionTransfer, transfer.Type)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/accounts/%d", janeAcc.ID), jane.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.Account](t, rec).Balance.Equal(decimal.NewFromInt(900)))

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/accounts/%d", johnAcc.ID), john.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.Account](t, rec).Balance.Equal(decimal.NewFromInt(100)))

	// John can see the transfer he received but not Jane's account.
	rec = a.do(http.MethodGet, "/v1/transactions/"+transfer.ID.String(), john.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/accounts/%d", janeAcc.ID), john.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Overdraft beyond the absolute limit.
	rec = a.do(http.MethodPost, "/v1/transactions", jane.Token, map[string]any{
		"senderIban":   janeAcc.IBAN,
		"receiverIban": johnAcc.IBAN,
		"amount":       1500,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var limitErr struct {
		Kind  string `json:"kind"`
		Limit struct {
			Type string `json:"type"`
		} `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &limitErr))
	assert.Equal(t, "limit_exceeded", limitErr.Kind)
	assert.Equal(t, "absolute_limit", limitErr.Limit.Type)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/users/%d/transactions", jane.UserID), admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[domain.ListResponse[domain.Transaction]](t, rec)
	assert.Len(t, history.Data, 2)

	rec = a.do(http.MethodGet, "/v1/admin/stats", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.OperationStats](t, rec)
	assert.Equal(t, float64(1), stats.Operations["TRANSFER/success"])
	assert.Equal(t, float64(1), stats.Rejections["absolute_limit"])

	// A block applies to tokens that were already issued.
	rec = a.do(http.MethodPut, fmt.Sprintf("/v1/users/%d/block", jane.UserID), admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/accounts/%d", janeAcc.ID), jane.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "jane@example.com", "password": "Secret#123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ValidationErrors(t *testing.T) {
	a := newAPI(t)
	jane := a.register("jane@example.com", "123456789", "Jane")

	rec := a.do(http.MethodPost, "/v1/transactions", jane.Token, map[string]any{
		"senderIban":   "nope",
		"receiverIban": "NL01INHO0000000002",
		"amount":       -5,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fields := make([]string, 0, len(body.Fields))
	for _, f := range body.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"senderIban", "amount"}, fields)

	rec = a.do(http.MethodPost, "/v1/transactions", jane.Token, map[string]any{
		"senderIban":   "NL01INHO0000000002",
		"receiverIban": "NL01INHO0000000003",
		"amount":       json.Number("100.005"),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "decimal places")

	rec = a.do(http.MethodPost, "/v1/transactions", jane.Token, map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/v1/auth/register", "", map[string]any{"email": "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/v1/transactions/not-a-uuid", jane.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/v1/accounts/abc", jane.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
