package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Users Handlers
// ============================================================

func meHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/me")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		user, err := svc.Get(ctx, actor.UserID, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func listUsersHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		offset, limit, err := parseOffsetLimit(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		withoutAccounts, _ := strconv.ParseBool(r.URL.Query().Get("withoutAccounts"))

		users, err := svc.List(ctx, domain.UserFilter{
			Offset:          offset,
			Limit:           limit,
			Search:          strings.TrimSpace(r.URL.Query().Get("search")),
			WithoutAccounts: withoutAccounts,
		}, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func getUserHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		user, err := svc.Get(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func patchUserHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/users/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req domain.UserPatchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		user, err := svc.Patch(ctx, id, &req, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func deleteUserHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/users/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.Delete(ctx, id, actor); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "user deleted", ID: strconv.FormatInt(id, 10)})
	}
}

func blockUserHandler(svc *service.UserService, block bool, logger *zap.Logger) http.HandlerFunc {
	op, name, msg := svc.Unblock, "PUT /v1/users/{id}/unblock", "user unblocked"
	if block {
		op, name, msg = svc.Block, "PUT /v1/users/{id}/block", "user blocked"
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
		if err := op(ctx, id, actor); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: msg, ID: strconv.FormatInt(id, 10)})
	}
}

func userBalanceHandler(svc *service.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{id}/balance")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		balance, err := svc.Balance(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, balance)
	}
}

func userAccountsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{id}/accounts")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		accounts, err := svc.ForUser(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}
