package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================
// Transactions Handlers
// ============================================================

func transferHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		var req domain.TransferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.SenderIBAN = strings.ToUpper(strings.TrimSpace(req.SenderIBAN))
		req.ReceiverIBAN = strings.ToUpper(strings.TrimSpace(req.ReceiverIBAN))
		if err := req.Validate(); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		tx, err := svc.Transfer(ctx, &req, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func getTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{id}")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}
		tx, err := svc.Get(ctx, id, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func userTransactionsHandler(svc *service.TransactionService, loc *time.Location, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{id}/transactions")
		defer span.End()
		actor, _ := ActorFromContext(ctx)

		id, err := pathID(r, "id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		filter, err := parseTransactionFilter(r, loc)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txs, err := svc.SearchForUser(ctx, id, filter, actor)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Transaction]{
			Data:     txs,
			Total:    len(txs),
			Page:     filter.Page,
			PageSize: filter.PageSize,
			HasMore:  filter.PageSize > 0 && len(txs) == filter.PageSize,
		})
	}
}

func parseTransactionFilter(r *http.Request, loc *time.Location) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	var errs domain.ValidationErrors
	f := domain.TransactionFilter{
		FromIBAN: strings.TrimSpace(q.Get("fromIban")),
		ToIBAN:   strings.TrimSpace(q.Get("toIban")),
	}

	var err error
	if f.Page, err = intParam(q.Get("page"), "page", 0); err != nil {
		errs.Add("page", "must be a non-negative integer")
	}
	if f.PageSize, err = intParam(q.Get("pageSize"), "pageSize", 20); err != nil {
		errs.Add("pageSize", "must be a non-negative integer")
	}
	if f.StartDate, err = dateParam(q.Get("startDate"), "startDate", loc, false); err != nil {
		errs.Add("startDate", "must be a date formatted YYYY-MM-DD")
	}
	if f.EndDate, err = dateParam(q.Get("endDate"), "endDate", loc, true); err != nil {
		errs.Add("endDate", "must be a date formatted YYYY-MM-DD")
	}
	if f.MinAmount, err = decimalParam(q.Get("minAmount"), "minAmount"); err != nil {
		errs.Add("minAmount", "must be a number")
	}
	if f.MaxAmount, err = decimalParam(q.Get("maxAmount"), "maxAmount"); err != nil {
		errs.Add("maxAmount", "must be a number")
	}
	if f.Amount, err = decimalParam(q.Get("amount"), "amount"); err != nil {
		errs.Add("amount", "must be a number")
	}

	switch strings.ToLower(q.Get("sort")) {
	case "", "desc":
	case "asc":
		f.Ascending = true
	default:
		errs.Add("sort", "must be asc or desc")
	}

	return f, errs.Err()
}
