package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Accounts Handlers
// ============================================================

func createAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		var req domain.CreateAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := req.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		acc, err := svc.Create(ctx, &req, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	}
}

func listAccountsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		offset, limit, err := parseOffsetLimit(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		accounts, err := svc.List(ctx, domain.AccountFilter{
			Offset: offset,
			Limit:  limit,
			Search: strings.TrimSpace(r.URL.Query().Get("search")),
		}, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func searchAccountsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/search")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		results, err := svc.LookupByOwnerName(ctx, strings.TrimSpace(r.URL.Query().Get("name")), actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func getAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		acc, err := svc.Get(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	}
}

func patchAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/accounts/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.PatchAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		acc, err := svc.PatchAbsoluteLimit(ctx, id, &req, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	}
}

func lockAccountHandler(svc *service.AccountService, lock bool, logger *zap.Logger) http.HandlerFunc {
	op := svc.Unlock
	name := "PUT /v1/accounts/{id}/unlock"
	if lock {
		op = svc.Lock
		name = "PUT /v1/accounts/{id}/lock"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		acc, err := op(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	}
}

func accountLimitsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{id}/limits")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		view, err := svc.Limits(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func atmHandler(svc *service.AccountService, txType domain.TransactionType, logger *zap.Logger) http.HandlerFunc {
	op := svc.Deposit
	name := "POST /v1/accounts/{id}/deposit"
	if txType == domain.TransactionWithdrawal {
		op = svc.Withdraw
		name = "POST /v1/accounts/{id}/withdraw"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name)
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.AtmRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := req.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := op(ctx, id, &req, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}
