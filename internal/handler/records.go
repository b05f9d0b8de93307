package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/service"
)

type createRecordRequest struct {
	MetricType string `json:"metricType"`
	Value      string `json:"value"`
}

func (h *Handler) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.Filter{
		Query:      q.Get("q"),
		MetricType: q.Get("type"),
		Status:     model.Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, r, model.ErrInvalidInput)
		return
	}

	res, err := h.records.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateRecordHandler(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.records.Create(r.Context(), owner, req.MetricType, req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ToggleRecordHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.records.ToggleStatus(r.Context(), addr, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) MetricTypesHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, model.SuggestedMetricTypes)
}
