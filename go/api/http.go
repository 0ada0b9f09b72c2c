package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
	log "github.com/sirupsen/logrus"
)

// Mux builds the net/http handler serving every operation in spec.md §6
// over REST, decoding the request, calling the core operation, and
// encoding the response with errors mapped to a status once per route.
func Mux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/quotes", h.serveGetLatest)
	mux.HandleFunc("/v1/subscriptions", h.serveSubscriptions)
	mux.HandleFunc("/v1/stream", h.serveStreamPrices)
	mux.HandleFunc("/v1/quality/score", h.serveQualityScore)
	mux.HandleFunc("/v1/quality/issues", h.serveQualityIssues)
	mux.HandleFunc("/v1/quality/health", h.serveQualityHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("err", err).Warn("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	log.WithFields(log.Fields{"err": err, "status": status}).Warn("request failed")
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{err.Error()})
}

func parseRICs(r *http.Request) []marketdata.RIC {
	raw := r.URL.Query().Get("rics")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	rics := make([]marketdata.RIC, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			rics = append(rics, marketdata.RIC(p))
		}
	}
	return rics
}

func (h *Handlers) serveGetLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, nil)
		return
	}
	quotes, err := h.GetLatest(r.Context(), parseRICs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (h *Handlers) serveSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		result, err := h.Subscribe(r.Context(), parseRICs(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		result, err := h.Unsubscribe(r.Context(), parseRICs(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodGet:
		result, err := h.Subscribed(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, nil)
	}
}

// serveStreamPrices implements StreamPrices as a chunked, newline-delimited
// JSON response: one PriceUpdate per line, flushed as it is published.
// It is intentionally the simplest transport that satisfies "server-push
// stream" without a gRPC/protobuf toolchain (spec.md §6).
func (h *Handlers) serveStreamPrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, nil)
		return
	}

	id, ch := h.StreamPrices(parseRICs(r))
	defer h.CloseStream(id)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(w)

	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			if err := encoder.Encode(quoteToDTO(update.RIC, update.Quote)); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) serveQualityScore(w http.ResponseWriter, r *http.Request) {
	var ric *marketdata.RIC
	if raw := r.URL.Query().Get("ric"); raw != "" {
		v := marketdata.RIC(raw)
		ric = &v
	}
	writeJSON(w, http.StatusOK, h.QualityScore(ric))
}

func (h *Handlers) serveQualityIssues(w http.ResponseWriter, r *http.Request) {
	var ric *marketdata.RIC
	if raw := r.URL.Query().Get("ric"); raw != "" {
		v := marketdata.RIC(raw)
		ric = &v
	}
	hours := 1.0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			hours = parsed
		}
	}
	writeJSON(w, http.StatusOK, h.QualityIssues(ric, hours))
}

func (h *Handlers) serveQualityHealth(w http.ResponseWriter, r *http.Request) {
	if h.QualityHealth() {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, nil)
}
