// Package api exposes the lease manager over HTTP.
//
// Mutations answer with an empty body on success and a plain-text error message on failure;
// reads answer with JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	leasekeeper "go-leasekeeper"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	maxBodyBytes = 1 << 20
	writeTimeout = 5 * time.Second
)

type Server struct {
	manager *leasekeeper.Manager
	hub     *Hub
	mux     *http.ServeMux
	options options
}

func NewServer(manager *leasekeeper.Manager, opts ...Option) *Server {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	s := &Server{
		manager: manager,
		hub:     NewHub(options.watchBuffer),
		mux:     http.NewServeMux(),
		options: options,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withRequestID(withAccessLog(s.options.logger, s.mux))
}

// Hub returns the change feed the server publishes to.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects every watcher. Hijacked connections are not tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.options.metrics != nil {
		s.mux.Handle("GET /metrics", s.options.metrics)
	}

	s.mux.HandleFunc("GET /resource", s.handleRead)
	s.mux.HandleFunc("POST /resource", s.handleLease)
	s.mux.HandleFunc("DELETE /resource", s.handleDelete)
	s.mux.HandleFunc("POST /resource/new", s.handleCreate)
	s.mux.HandleFunc("GET /resource/watch", s.handleWatch)
}

// resourceView is a resource plus its lazily-evaluated state at response time.
type resourceView struct {
	leasekeeper.Resource
	State string `json:"state"`
}

func (s *Server) view(res leasekeeper.Resource) resourceView {
	if res.OtherFields == nil {
		res.OtherFields = map[string]string{}
	}
	return resourceView{
		Resource: res,
		State:    res.StateAt(s.manager.Now()).String(),
	}
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("name") {
		res, err := s.manager.Get(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.view(res))
		return
	}

	resources, err := s.manager.List(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var out = make([]resourceView, 0, len(resources))
	for _, res := range resources {
		out = append(out, s.view(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// leaseReq is a reservation when ReservedBy is set and a clear otherwise.
type leaseReq struct {
	Name          string `json:"name"`
	ReservedBy    string `json:"reserved_by"`
	ReservedUntil int64  `json:"reserved_until"`
	RequestedBy   string `json:"requested_by"`
}

func (s *Server) handleLease(w http.ResponseWriter, r *http.Request) {
	var req leaseReq
	if err := readJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if req.ReservedBy != "" {
		if _, err := s.manager.ReserveUntil(r.Context(), req.Name, req.ReservedBy, req.ReservedUntil); err != nil {
			s.writeFailure(w, r, err)
			return
		}
		s.publish(r.Context(), EventReserved, req.Name)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.manager.Clear(r.Context(), req.Name, req.RequestedBy); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(r.Context(), EventCleared, req.Name)
	w.WriteHeader(http.StatusOK)
}

type createReq struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OtherFields map[string]string `json:"other_fields"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := readJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	res, err := s.manager.Register(r.Context(), leasekeeper.Resource{
		Name:        req.Name,
		Description: req.Description,
		OtherFields: req.OtherFields,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.hub.Publish(Event{Type: EventCreated, Resource: res})
	w.WriteHeader(http.StatusOK)
}

type deleteReq struct {
	Name string `json:"name"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteReq
	if err := readJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if err := s.manager.Remove(r.Context(), req.Name); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.hub.Publish(Event{Type: EventDeleted, Resource: leasekeeper.Resource{Name: req.Name}})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	// Watchers outlive the server's read and write timeouts.
	var rc = http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the failure response.
		s.options.logger.Warn("failed to accept watcher", "request_id", RequestID(r.Context()), "error", err)
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	var ctx = conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "watcher dropped")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// publish re-reads name so watchers get the full resource. A failed read still publishes the name.
func (s *Server) publish(ctx context.Context, eventType, name string) {
	res, err := s.manager.Get(ctx, name)
	if err != nil {
		res = leasekeeper.Resource{Name: name}
	}
	s.hub.Publish(Event{Type: eventType, Resource: res})
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var status = statusFor(err)
	if status >= http.StatusInternalServerError {
		s.options.logger.Error("request failed",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeErr(w, status, err.Error())
}

// statusFor maps lease errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, leasekeeper.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, leasekeeper.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, leasekeeper.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, leasekeeper.ErrConflict), errors.Is(err, leasekeeper.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, leasekeeper.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- helpers ---

func readJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: missing body", leasekeeper.ErrInvalidRequest)
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %w", leasekeeper.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
