// Package handler exposes the ledger, the record service and the session
// issuer over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/ledger"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/service"
	"github.com/idudko/fhe-telemetry/pkg/hash"
)

// maxBodySize caps request bodies, including raw key/value blobs.
const maxBodySize = 1 << 20

type Handler struct {
	contract  *ledger.Contract
	records   *service.RecordService
	issuer    *auth.Issuer
	oracleKey []byte
	key       string
}

// NewHandler wires the API. oracleKeyPEM is served to clients that encrypt
// values themselves; key signs response bodies when non-empty.
func NewHandler(contract *ledger.Contract, records *service.RecordService, issuer *auth.Issuer, oracleKeyPEM []byte, key string) *Handler {
	return &Handler{
		contract:  contract,
		records:   records,
		issuer:    issuer,
		oracleKey: oracleKeyPEM,
		key:       key,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	h.writeBody(w, status, "application/json", body)
}

func (h *Handler) writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if sum := hash.ComputeHash(body, h.key); sum != "" {
		w.Header().Set(hash.HeaderName, sum)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the model error kinds to status codes. Anything unknown is
// a 500 and is logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("uri", r.RequestURI).Msg("request failed")
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrSerialization):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return errors.Join(model.ErrInvalidInput, err)
	}
	return nil
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.Join(model.ErrInvalidInput, err)
	}
	return id, nil
}

func caller(r *http.Request) (model.Address, error) {
	addr, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return "", model.ErrUnauthorized
	}
	return addr, nil
}
