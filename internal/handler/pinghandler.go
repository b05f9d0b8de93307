package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger is the health probe of the key/value backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	pinger  Pinger
	timeout time.Duration
}

func NewPingHandler(pinger Pinger) *PingHandler {
	return &PingHandler{pinger: pinger, timeout: time.Second}
}

// PingHandler answers 200 when the storage backend responds within the
// timeout and 500 otherwise.
func (h *PingHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		log.Error().Msg("ping failed: storage not configured")
		http.Error(w, "storage not configured", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.pinger.Ping(ctx); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("storage ping failed")
		http.Error(w, "storage unreachable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
