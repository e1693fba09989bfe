package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vantagehq/vantage/master/internal/eventstore"
	"github.com/vantagehq/vantage/pkg/types"
)

// ProbeSource serves probe configuration by zone.
type ProbeSource interface {
	ProbesForZone(zone string) []types.ProbeConfig
	AgentProbes() []types.ProbeConfig
}

// Notifier is the hook invoked for every accepted event.
type Notifier interface {
	HandleEvent(ctx context.Context, ev types.Event) error
}

// Handler is the HTTP handler for the agent-facing API.
type Handler struct {
	probes   ProbeSource
	store    *eventstore.Store
	notifier Notifier
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. notifier may be nil
// when dispatch is disabled.
func New(probes ProbeSource, store *eventstore.Store, notifier Notifier) http.Handler {
	h := &Handler{probes: probes, store: store, notifier: notifier, mux: http.NewServeMux()}

	h.mux.HandleFunc("/config", h.config)
	h.mux.HandleFunc("/agentprobes", h.agentProbes)
	h.mux.HandleFunc("/events", h.events)
	h.mux.HandleFunc("/events/", h.getEvent) // subtree, extracts {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A mismatched protocol version is a 409: the caller speaks a
	// different dialect and retrying will not help. Absent headers
	// pass, for curl and health checks.
	if v := r.Header.Get(types.HeaderAPIVersion); v != "" && v != types.APIVersion {
		jsonErr(w, http.StatusConflict, "unsupported api version "+v)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// config serves HEAD|GET /config?zone= with the probe set for one
// zone. HEAD answers 204 with only the digest; an agent whose cached
// digest matches never fetches the body.
func (h *Handler) config(w http.ResponseWriter, r *http.Request) {
	zone := r.URL.Query().Get("zone")
	if zone == "" {
		jsonErr(w, http.StatusBadRequest, "zone parameter is required")
		return
	}

	body, err := json.Marshal(types.ConfigSnapshot{Zone: zone, Probes: h.probes.ProbesForZone(zone)})
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "encode config")
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.Header().Set(types.HeaderContentMD5, types.ContentMD5(body))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(types.HeaderContentMD5, types.ContentMD5(body))
		w.Write(body)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// agentProbes serves HEAD|GET /agentprobes, the global-zone probe set
// shared by every agent, digest-gated like /config.
func (h *Handler) agentProbes(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(h.probes.AgentProbes())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "encode agent probes")
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.Header().Set(types.HeaderContentMD5, types.ContentMD5(body))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(types.HeaderContentMD5, types.ContentMD5(body))
		w.Write(body)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// events handles POST /events (intake) and GET /events (index query).
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.postEvent(w, r)
	case http.MethodGet:
		h.listEvents(w, r)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		jsonErr(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body")
		return
	}
	// When the sender advertises a digest it must hold. A mismatch
	// means corruption in flight and the body cannot be trusted.
	if advertised := r.Header.Get(types.HeaderContentMD5); advertised != "" {
		if computed := types.ContentMD5(body); computed != advertised {
			jsonErr(w, http.StatusBadRequest, "body failed Content-MD5 verification")
			return
		}
	}

	var ev types.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		jsonErr(w, http.StatusBadRequest, "malformed event: "+err.Error())
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := h.store.Put(ev); err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			jsonErr(w, http.StatusBadRequest, verr.Error())
			return
		}
		jsonErr(w, http.StatusInternalServerError, "store event")
		return
	}

	// The event is durable once stored; notification trouble is the
	// master's to log, not the agent's to retry.
	if h.notifier != nil {
		if err := h.notifier.HandleEvent(r.Context(), ev); err != nil {
			slog.Error("api: notification failed", "event", ev.ID, "err", err)
		}
	}

	jsonResp(w, http.StatusCreated, ev)
}

// listEvents serves GET /events?check=|customer=|zone= from the
// secondary indexes. Exactly one selector is required.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var out []types.Event
	switch {
	case q.Get("check") != "":
		out = h.store.ByCheck(q.Get("check"))
	case q.Get("customer") != "":
		out = h.store.ByCustomer(q.Get("customer"))
	case q.Get("zone") != "":
		out = h.store.ByZone(q.Get("zone"))
	default:
		jsonErr(w, http.StatusBadRequest, "one of check, customer or zone is required")
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// getEvent serves GET /events/{id}.
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/events/")
	if id == "" {
		h.listEvents(w, r)
		return
	}

	ev, err := h.store.Get(id)
	switch {
	case errors.Is(err, eventstore.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "event not found")
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, "read event")
	default:
		jsonResp(w, http.StatusOK, ev)
	}
}

// --- helpers ----------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
