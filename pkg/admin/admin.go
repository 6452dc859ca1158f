// Package admin serves the operator HTTP surface of a server: health,
// Prometheus metrics, the player list, kicks and broadcasts.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /connections
//	POST /connections/{id}/kick         {"reason": "..."}
//	POST /connections/{id}/reconfigure
//	POST /broadcast                     {"message": "...", "overlay": false}
package admin

import (
	"cmp"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/server"
)

// DefaultKickReason is sent when a kick request names no reason.
const DefaultKickReason = "Kicked by an operator"

// maxBody bounds request bodies.
const maxBody = 64 << 10

// Backend is the part of a server the admin surface drives.
// *server.Server implements it.
type Backend interface {
	Directory() *server.Directory
	ConnCount() int
	Close(id server.ConnID, reason string) error
	Reconfigure(id server.ConnID) error
	Broadcast(p packet.Packet, except ...server.ConnID) int
}

// Option configures a Handler.
type Option func(*Handler)

// WithGatherer sets the registry /metrics exposes.
// Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// Handler is the admin http.Handler.
type Handler struct {
	backend  Backend
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   chi.Router
}

// New creates the admin handler for b.
func New(b Backend, opts ...Option) *Handler {
	h := &Handler{
		backend:  b,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "admin")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Route("/connections", func(r chi.Router) {
		r.Get("/", h.listConnections)
		r.Post("/{id}/kick", h.kick)
		r.Post("/{id}/reconfigure", h.reconfigure)
	})
	r.Post("/broadcast", h.broadcast)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Connection is one entry of GET /connections.
type Connection struct {
	ID       server.ConnID `json:"id"`
	Name     string        `json:"name"`
	UUID     string        `json:"uuid"`
	Version  string        `json:"version"`
	Protocol int32         `json:"protocol"`
	Remote   string        `json:"remote"`
	JoinedAt time.Time     `json:"joined_at"`
}

// ConnectionList is the body of GET /connections.
type ConnectionList struct {
	// Open counts connections in any state; Players only those in play.
	Open    int          `json:"open"`
	Players []Connection `json:"players"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	handles := h.backend.Directory().Snapshot()
	list := ConnectionList{
		Open:    h.backend.ConnCount(),
		Players: make([]Connection, 0, len(handles)),
	}
	for _, hd := range handles {
		p := hd.Player()
		list.Players = append(list.Players, Connection{
			ID:       hd.ID(),
			Name:     p.Name,
			UUID:     p.UUID.String(),
			Version:  p.Version.Name(),
			Protocol: int32(p.Version),
			Remote:   p.Remote,
			JoinedAt: p.JoinedAt,
		})
	}
	slices.SortFunc(list.Players, func(a, b Connection) int {
		return cmp.Compare(a.ID, b.ID)
	})
	writeJSON(w, http.StatusOK, list)
}

type kickRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) kick(w http.ResponseWriter, r *http.Request) {
	id, ok := connID(w, r)
	if !ok {
		return
	}
	var req kickRequest
	if !readJSON(w, r, &req, true) {
		return
	}
	if req.Reason == "" {
		req.Reason = DefaultKickReason
	}
	if err := h.backend.Close(id, req.Reason); err != nil {
		h.fail(w, id, err)
		return
	}
	h.logger.Info("player kicked", "conn_id", id, "reason", req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reconfigure(w http.ResponseWriter, r *http.Request) {
	id, ok := connID(w, r)
	if !ok {
		return
	}
	if err := h.backend.Reconfigure(id); err != nil {
		h.fail(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	Message string `json:"message"`
	Overlay bool   `json:"overlay"`
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !readJSON(w, r, &req, false) {
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	n := h.backend.Broadcast(&packet.SystemChat{Content: nbt.Text(req.Message), Overlay: req.Overlay})
	h.logger.Info("broadcast sent", "delivered", n)
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

// fail maps backend errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, id server.ConnID, err error) {
	switch {
	case errors.Is(err, server.ErrNotFound):
		http.Error(w, "connection not found", http.StatusNotFound)
	case errors.Is(err, server.ErrWrongState), errors.Is(err, server.ErrConnClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Warn("admin request failed", "conn_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func connID(w http.ResponseWriter, r *http.Request) (server.ConnID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return 0, false
	}
	return server.ConnID(n), true
}

// readJSON decodes the request body into v. An empty body is accepted when
// optional is set.
func readJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	http.Error(w, "invalid JSON body", http.StatusBadRequest)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
