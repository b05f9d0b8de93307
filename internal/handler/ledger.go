package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/idudko/fhe-telemetry/internal/model"
)

type submitMetricRequest struct {
	CPU     model.EncryptedValue `json:"cpu"`
	Memory  model.EncryptedValue `json:"memory"`
	Disk    model.EncryptedValue `json:"disk"`
	Network model.EncryptedValue `json:"network"`
}

type reportCrashRequest struct {
	ErrorCode   model.EncryptedValue `json:"errorCode"`
	MemDumpHash model.EncryptedValue `json:"memDumpHash"`
	ProcessID   model.EncryptedValue `json:"processId"`
}

type analyzePerformanceRequest struct {
	MetricIDs []uint64 `json:"metricIds"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

type countResponse struct {
	Count uint64 `json:"count"`
}

type requestResponse struct {
	RequestID model.RequestID `json:"requestId"`
}

func (h *Handler) SubmitMetricHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req submitMetricRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.contract.SubmitSystemMetric(r.Context(), addr, req.CPU, req.Memory, req.Disk, req.Network)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) MetricCountHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, countResponse{Count: h.contract.MetricCount()})
}

func (h *Handler) GetMetricHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.contract.Metric(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DecryptMetricHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reqID, err := h.contract.RequestMetricDecryption(r.Context(), addr, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, requestResponse{RequestID: reqID})
}

func (h *Handler) ReportCrashHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reportCrashRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.contract.ReportCrash(r.Context(), addr, req.ErrorCode, req.MemDumpHash, req.ProcessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *Handler) CrashCountHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, countResponse{Count: h.contract.CrashCount()})
}

func (h *Handler) GetCrashHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cr, err := h.contract.Crash(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cr)
}

func (h *Handler) CrashStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	analyzed, err := h.contract.CrashAnalysisStatus(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"analyzed": analyzed})
}

func (h *Handler) AnalyzeCrashHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reqID, err := h.contract.AnalyzeCrash(r.Context(), addr, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, requestResponse{RequestID: reqID})
}

func (h *Handler) AnalyzePerformanceHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req analyzePerformanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	reqID, err := h.contract.AnalyzePerformance(r.Context(), addr, req.MetricIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, requestResponse{RequestID: reqID})
}

func (h *Handler) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.contract.Analysis(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, model.ErrInvalidInput)
			return
		}
		limit = n
	}
	h.writeJSON(w, http.StatusOK, h.contract.Events(limit))
}

func (h *Handler) GetDataHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.contract.GetData(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		h.writeError(w, r, model.ErrNotFound)
		return
	}
	h.writeBody(w, http.StatusOK, "application/octet-stream", data)
}

// SetDataHandler writes a raw KV entry. Record keys are refused so records
// only change through the owner checked record endpoints.
func (h *Handler) SetDataHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if model.IsRecordKey(key) {
		h.writeError(w, r, fmt.Errorf("%w: key %q is reserved for records", model.ErrUnauthorized, key))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, model.ErrInvalidInput)
		return
	}
	if err := h.contract.SetData(r.Context(), key, body); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AvailableHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"available": h.contract.IsAvailable(r.Context())})
}

func (h *Handler) OracleKeyHandler(w http.ResponseWriter, r *http.Request) {
	h.writeBody(w, http.StatusOK, "application/x-pem-file", h.oracleKey)
}
