package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ============================================================
// Shared helper functions
// ============================================================

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type limitDetail struct {
	Type    domain.LimitType `json:"type"`
	Limit   decimal.Decimal  `json:"limit"`
	Current decimal.Decimal  `json:"current"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Kind   string       `json:"kind,omitempty"`
	Fields []fieldError `json:"fields,omitempty"`
	Limit  *limitDetail `json:"limit,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: describeDecodeError(err)}
	}
	if dec.More() {
		return &domain.ErrValidation{Field: "body", Message: "body must contain a single JSON object"}
	}
	return nil
}

func describeDecodeError(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "body is empty"
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	default:
		return err.Error()
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ErrValidation{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// parseOffsetLimit reads ?offset=&limit= used by the user and account lists.
func parseOffsetLimit(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if offset, err = intParam(q.Get("offset"), "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = intParam(q.Get("limit"), "limit", 0); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func intParam(v, name string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &domain.ErrValidation{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func decimalParam(v, name string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, &domain.ErrValidation{Field: name, Message: "must be a number"}
	}
	return &d, nil
}

// dateParam parses YYYY-MM-DD in loc. endOfDay moves the result to the last
// instant of that day.
func dateParam(v, name string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return nil, &domain.ErrValidation{Field: name, Message: "must be a date formatted YYYY-MM-DD"}
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var fields domain.ValidationErrors
	var validation *domain.ErrValidation
	var notFound *domain.ErrNotFound
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var blocked *domain.ErrUserBlocked
	var limitExceeded *domain.ErrLimitExceeded
	var conflict *domain.ErrConflict
	var circuitOpen *domain.ErrCircuitOpen

	kind := string(domain.KindOf(err))

	switch {
	case errors.As(err, &fields):
		logger.Debug("validation error", zap.String("error", err.Error()))
		resp := errorResponse{Error: "validation failed", Kind: kind}
		for _, f := range fields {
			resp.Fields = append(resp.Fields, fieldError{Field: f.Field, Message: f.Message})
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  err.Error(),
			Kind:   kind,
			Fields: []fieldError{{Field: validation.Field, Message: validation.Message}},
		})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: kind})
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Kind: kind})
	case errors.As(err, &forbidden), errors.As(err, &blocked):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Kind: kind})
	case errors.As(err, &limitExceeded):
		logger.Info("limit exceeded", zap.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Kind:  kind,
			Limit: &limitDetail{
				Type:    limitExceeded.LimitType,
				Limit:   limitExceeded.Limit,
				Current: limitExceeded.Current,
			},
		})
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: kind})
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable", Kind: kind})
	case domain.KindOf(err) == domain.KindValidation:
		logger.Debug("rejected", zap.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kind})
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: kind})
	}
}
