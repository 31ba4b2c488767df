// Package api exposes the connection manager over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/codec"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/gesture"
	"github.com/srg/tangible/internal/interaction"
)

// Manager is the part of connection.Manager the handlers use.
type Manager interface {
	CheckAvailability(ctx context.Context) (connection.Availability, error)
	State() connection.State
	Address() string
	Subscribe(ctx context.Context) <-chan connection.State
	Send(ctx context.Context, i interaction.Interaction) (connection.Ack, error)
	Journal() []connection.SendRecord
}

// Server holds the handler dependencies.
type Server struct {
	manager    Manager
	dispatcher *gesture.Dispatcher
	gatherer   prometheus.Gatherer
	logger     *logrus.Logger
}

type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher publishes every classified gesture through d and streams
// its output on /v1/events.
func WithDispatcher(d *gesture.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewHandler creates the HTTP handler.
func NewHandler(m Manager, opts ...Option) http.Handler {
	s := &Server{manager: m, logger: logrus.New()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/availability", s.GetAvailability)
		r.Get("/state", s.GetState)
		r.Get("/events", s.SubscribeEvents)
		r.Get("/journal", s.GetJournal)
		r.Post("/interactions", s.PostInteraction)
		r.Post("/gestures", s.PostGesture)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetAvailability handles GET /v1/availability.
func (s *Server) GetAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := s.manager.CheckAvailability(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"availability": a.String()})
}

type stateResponse struct {
	State   connection.State `json:"state"`
	Address string           `json:"address,omitempty"`
}

// GetState handles GET /v1/state.
func (s *Server) GetState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, stateResponse{
		State:   s.manager.State(),
		Address: s.manager.Address(),
	})
}

// GetJournal handles GET /v1/journal. Records are returned once.
func (s *Server) GetJournal(w http.ResponseWriter, _ *http.Request) {
	records := s.manager.Journal()
	if records == nil {
		records = []connection.SendRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

type interactionRequest struct {
	Code string `json:"code"`
}

type sendResponse struct {
	Code  string `json:"code"`
	Frame string `json:"frame"`
	ID    string `json:"id,omitempty"`
	Ack   string `json:"ack,omitempty"`
	RTTMs int64  `json:"rtt_ms,omitempty"`
}

// PostInteraction handles POST /v1/interactions.
func (s *Server) PostInteraction(w http.ResponseWriter, r *http.Request) {
	var body interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	i, err := interaction.Parse(body.Code)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.send(w, r, i)
}

type gestureRequest struct {
	Kind   interaction.Kind   `json:"kind"`
	X      float64            `json:"x"`
	Y      float64            `json:"y"`
	Start  *interaction.Point `json:"start,omitempty"`
	End    *interaction.Point `json:"end,omitempty"`
	Width  float64            `json:"width"`
	Height float64            `json:"height"`
	Send   bool               `json:"send"`
}

func (g gestureRequest) event() gesture.Event {
	e := gesture.Event{
		Kind:   g.Kind,
		Start:  interaction.Point{X: g.X, Y: g.Y},
		Extent: interaction.ScreenExtent{Width: g.Width, Height: g.Height},
	}
	if g.Start != nil {
		e.Start = *g.Start
	}
	if g.End != nil {
		e.End = *g.End
	}
	return e
}

// PostGesture handles POST /v1/gestures: the gesture is classified and, with
// "send": true, delivered.
func (s *Server) PostGesture(w http.ResponseWriter, r *http.Request) {
	var body gestureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if body.Kind == interaction.KindFling && (body.Start == nil || body.End == nil) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "fling requires start and end"})
		return
	}
	e := body.event()
	if err := e.Validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var i interaction.Interaction
	if s.dispatcher != nil {
		i = s.dispatcher.Dispatch(e)
	} else {
		i = gesture.Classify(e)
	}

	if !body.Send || i.IsUnknown() {
		s.writeJSON(w, http.StatusOK, map[string]string{"code": i.String()})
		return
	}
	s.send(w, r, i)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, i interaction.Interaction) {
	frame, err := codec.EncodeInteraction(i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ack, err := s.manager.Send(r.Context(), i)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sendResponse{
		Code:  i.Code(),
		Frame: frame.Hex(),
		ID:    ack.ID.String(),
		Ack:   string(ack.Data),
		RTTMs: ack.RTT.Milliseconds(),
	})
}

// SubscribeEvents handles GET /v1/events (SSE). It streams "state" events
// and, with a dispatcher, "interaction" events until the client goes away.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	ctx := r.Context()
	states := s.manager.Subscribe(ctx)
	var interactions <-chan interaction.Interaction
	if s.dispatcher != nil {
		interactions = s.dispatcher.Subscribe(ctx, 16)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.logger.Debug("SSE client subscribed")
	writeEvent(w, "state", stateResponse{State: s.manager.State(), Address: s.manager.Address()})
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected")
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			writeEvent(w, "state", stateResponse{State: st, Address: s.manager.Address()})
		case i, ok := <-interactions:
			if !ok {
				interactions = nil
				continue
			}
			writeEvent(w, "interaction", map[string]string{"code": i.Code(), "kind": i.Kind().String()})
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

type errorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps a core error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, device.ErrNotConnected),
		errors.Is(err, device.ErrAlreadyConnected),
		errors.Is(err, device.ErrNoPairedPeripheral):
		return http.StatusConflict
	case errors.Is(err, device.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, device.ErrWriteTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, device.ErrLinkDropped):
		return http.StatusBadGateway
	case errors.Is(err, codec.ErrNotEncodable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	log := s.logger.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Warn("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Debug("Failed to encode response")
	}
}

// ShutdownTimeout bounds graceful shutdown of Serve.
const ShutdownTimeout = 5 * time.Second

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
