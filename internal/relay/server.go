package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"unhidra/internal/domain"
)

// Error codes carried in JSON error bodies so clients can map them back to
// domain errors.
const (
	codeBadRequest     = "bad_request"
	codeBundleNotFound = "bundle_not_found"
	codePreKeyConsumed = "prekey_consumed"
	codeQueueFull      = "queue_full"
	codeInternal       = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type publishResponse struct {
	BundleID domain.BundleID `json:"bundle_id"`
}

type consumeRequest struct {
	ID domain.OneTimePreKeyID `json:"id"`
}

type ackRequest struct {
	Count int `json:"count"`
}

// ServerConfig configures a relay Server.
type ServerConfig struct {
	Registry domain.PreKeyRegistry
	Mailbox  domain.Mailbox
	Log      slog.Logger

	// MaxBodyBytes bounds request bodies. Zero selects 2 MiB.
	MaxBodyBytes int64
}

// Server exposes a PreKeyRegistry and a Mailbox over JSON HTTP.
//
// Routes:
//
//	POST /v1/bundles/{device}          publish a PreKeyUpload
//	GET  /v1/bundles/{device}          fetch a PreKeyBundle
//	POST /v1/bundles/{device}/consume  consume a one-time pre-key
//	POST /v1/messages/{device}         queue a Delivery for device
//	GET  /v1/messages/{device}?limit=  list queued deliveries
//	POST /v1/messages/{device}/ack     drop the first count deliveries
type Server struct {
	cfg   ServerConfig
	log   slog.Logger
	stats *stats
	mux   *http.ServeMux
}

// NewServer returns a relay server. Nothing listens until Run.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil || cfg.Mailbox == nil {
		return nil, errors.New("relay server needs a registry and a mailbox")
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	var depth func() float64
	if d, ok := cfg.Mailbox.(interface{ Depth() int }); ok {
		depth = func() float64 { return float64(d.Depth()) }
	}
	s := &Server{
		cfg:   cfg,
		log:   log,
		stats: newStats(depth),
		mux:   http.NewServeMux(),
	}
	s.route("POST /v1/bundles/{device}", "publish", s.handlePublish)
	s.route("GET /v1/bundles/{device}", "fetch", s.handleFetch)
	s.route("POST /v1/bundles/{device}/consume", "consume", s.handleConsume)
	s.route("POST /v1/messages/{device}", "send", s.handleSend)
	s.route("GET /v1/messages/{device}", "inbox", s.handleInbox)
	s.route("POST /v1/messages/{device}/ack", "ack", s.handleAck)
	return s, nil
}

// statusRecorder captures the status code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) route(pattern, name string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, s.cfg.MaxBodyBytes)
		h(rec, r)
		s.stats.requests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
		s.log.Tracef("%s %s -> %d", r.Method, r.URL.Path, rec.code)
	})
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler { return s.mux }

// MetricsHandler returns the Prometheus handler for this server's metrics.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		s.stats.reg, promhttp.HandlerFor(s.stats.reg, promhttp.HandlerOpts{}),
	)
}

// Run serves the API on listen and, when metricsListen is not empty, the
// metrics endpoint on metricsListen. It returns when ctx is done or a
// listener fails.
func (s *Server) Run(ctx context.Context, listen, metricsListen string) error {
	g, gctx := errgroup.WithContext(ctx)
	serve := func(addr string, h http.Handler) {
		hs := &http.Server{
			Addr:              addr,
			Handler:           h,
			BaseContext:       func(net.Listener) context.Context { return gctx },
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return hs.Shutdown(ctx)
		})
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	s.log.Infof("Relay listening on %s", listen)
	serve(listen, s.Handler())
	if metricsListen != "" {
		s.log.Infof("Exposing prometheus metrics on %s", metricsListen)
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.MetricsHandler())
		serve(metricsListen, mux)
	}
	return g.Wait()
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debugf("Unable to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := codeInternal, http.StatusInternalServerError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrBundleNotFound):
		code, status = codeBundleNotFound, http.StatusNotFound
	case errors.Is(err, domain.ErrPreKeyConsumed):
		code, status = codePreKeyConsumed, http.StatusConflict
	case errors.Is(err, errQueueFull):
		code, status = codeQueueFull, http.StatusServiceUnavailable
	case errors.As(err, &maxErr), errors.Is(err, errBadRequest):
		code, status = codeBadRequest, http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Errorf("Relay request failed: %v", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func device(r *http.Request) domain.DeviceID {
	return domain.DeviceID(r.PathValue("device"))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var up domain.PreKeyUpload
	if err := decodeBody(r, &up); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.cfg.Registry.Publish(r.Context(), device(r), up)
	if err != nil {
		// The registry only fails publish on a malformed upload.
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.stats.bundlesPublished.Inc()
	s.log.Infof("Published bundle %s for %s", id, device(r))
	s.writeJSON(w, http.StatusOK, publishResponse{BundleID: id})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.Registry.Fetch(r.Context(), device(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.stats.bundlesFetched.Inc()
	if b.OneTimePreKey == nil {
		s.stats.fetchesNoOPK.Inc()
		s.log.Warnf("Bundle for %s handed out without a one-time pre-key", device(r))
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	err := s.cfg.Registry.ConsumeOneTimePreKey(r.Context(), device(r), req.ID)
	if errors.Is(err, domain.ErrPreKeyConsumed) {
		s.stats.consumeRejected.Inc()
		s.log.Warnf("Consume of already consumed one-time pre-key %s/%s", device(r), req.ID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.stats.opksConsumed.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var d domain.Delivery
	if err := decodeBody(r, &d); err != nil {
		s.writeError(w, err)
		return
	}
	d.To = device(r)
	if d.From == "" {
		s.writeError(w, fmt.Errorf("%w: delivery without sender", errBadRequest))
		return
	}
	if err := s.cfg.Mailbox.Send(r.Context(), d); err != nil {
		s.writeError(w, err)
		return
	}
	s.stats.deliveriesIn.Inc()
	s.log.Debugf("Queued %d bytes from %s to %s", len(d.Payload), d.From, d.To)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, fmt.Errorf("%w: bad limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	ds, err := s.cfg.Mailbox.Fetch(r.Context(), device(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ds == nil {
		ds = []domain.Delivery{}
	}
	s.writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.cfg.Mailbox.Ack(r.Context(), device(r), req.Count); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.stats.deliveriesAcked.Add(float64(req.Count))
	w.WriteHeader(http.StatusNoContent)
}
