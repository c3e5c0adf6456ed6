// Package server wires the site pages, the client runtime, the live
// endpoint, metrics and health checks into one http.Handler.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gabrielmiguelok/stepform/client"
	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/health"
	"github.com/gabrielmiguelok/stepform/pkg/lifecycle"
	"github.com/gabrielmiguelok/stepform/pkg/limits"
	"github.com/gabrielmiguelok/stepform/pkg/live"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/metrics"
	"github.com/gabrielmiguelok/stepform/pkg/protocol"
	"github.com/gabrielmiguelok/stepform/pkg/site"
	"github.com/gabrielmiguelok/stepform/pkg/stepper"
	"github.com/gabrielmiguelok/stepform/pkg/transport"
)

// Routes served besides the site pages.
const (
	LivePath     = "/live"
	MetricsPath  = "/metrics"
	HealthPath   = "/healthz"
	LivenessPath = "/livez"
)

const maxFormBytes = 64 << 10

// Options configures a Server. Site is required.
type Options struct {
	Site      *site.Site
	Stepper   stepper.Options
	Transport *transport.Config
	WebSocket *transport.WebSocketConfig
	Codecs    *protocol.CodecRegistry

	FrameInterval  time.Duration
	MaxConnections int
	Limits         Limits

	// Metrics is optional; nil disables /metrics and instrumentation.
	Metrics *metrics.Metrics
	Logger  logging.Logger
	Version string
}

// Limits bounds what a single client may do. Zero values disable the
// matching limit.
type Limits struct {
	// ConnectionsPerIP caps concurrent live connections per address.
	ConnectionsPerIP int
	// TrustProxy takes client addresses from True-Client-IP, X-Real-IP
	// and X-Forwarded-For.
	TrustProxy bool

	// EventRate is the DOM events per second each live connection may send.
	EventRate  float64
	EventBurst int

	// SubmitRate is the native form posts per second per address.
	SubmitRate  float64
	SubmitBurst int
}

// Server serves the site and its live connections.
type Server struct {
	opts    Options
	log     logging.Logger
	conns   *transport.Manager
	health  *health.Checker
	handler http.Handler

	perIP  *limits.ConnectionLimiter
	events *limits.TokenBucket
	posts  *limits.TokenBucket
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Codecs == nil {
		opts.Codecs = protocol.DefaultCodecRegistry
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1000
	}
	if opts.Metrics != nil {
		opts.Stepper.Observer = opts.Metrics
	}
	log := logging.OrNop(opts.Logger).With(logging.Component("server"))
	if opts.Stepper.Logger == nil {
		opts.Stepper.Logger = opts.Logger
	}

	s := &Server{
		opts:   opts,
		log:    log,
		conns:  transport.NewManager(),
		health: health.NewChecker(opts.Version),
	}
	if l := opts.Limits; l.ConnectionsPerIP > 0 {
		s.perIP = limits.NewConnectionLimiter(l.ConnectionsPerIP)
	}
	if l := opts.Limits; l.EventRate > 0 {
		s.events = limits.NewTokenBucket(l.EventRate, l.EventBurst)
	}
	if l := opts.Limits; l.SubmitRate > 0 {
		s.posts = limits.NewTokenBucket(l.SubmitRate, l.SubmitBurst)
	}
	s.health.AddCritical("site", health.RenderCheck(opts.Site.Render, "/"), time.Second)
	s.health.Add("connections", health.ConnectionsCheck(s.conns.Count, opts.MaxConnections), time.Second)

	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Connections returns the number of open live connections.
func (s *Server) Connections() int {
	return s.conns.Count()
}

// CloseConnections closes every live connection. Each disposes its page
// session as it ends.
func (s *Server) CloseConnections() {
	s.conns.CloseAll()
}

func (s *Server) routes() http.Handler {
	var obs RequestObserver
	if s.opts.Metrics != nil {
		obs = s.opts.Metrics
	}
	mux := http.NewServeMux()

	mux.Handle("GET /{path...}", Chain(http.HandlerFunc(s.handlePage),
		Instrument(obs, "page"), Compress()))
	mux.Handle("GET "+site.ScriptPath, Chain(http.HandlerFunc(s.handleScript),
		Instrument(obs, "script"), Compress()))

	if action := s.opts.Site.Definition().Action; strings.HasPrefix(action, "/") {
		mw := []Middleware{Instrument(obs, "submit")}
		if s.posts != nil {
			mw = append(mw, limits.Middleware(s.posts, limits.ClientIP))
		}
		mux.Handle("POST "+action, Chain(s.submitHandler(action), mw...))
	}

	ws := &transport.WebSocketHandler{
		Config:   s.opts.Transport,
		Security: s.opts.WebSocket,
		Codecs:   s.opts.Codecs,
		Logger:   s.log,
		OnAccept: s.serveLive,
	}
	liveMW := []Middleware{Instrument(obs, "live")}
	if s.perIP != nil {
		liveMW = append(liveMW, s.perIP.Middleware(limits.ClientIP))
	}
	mux.Handle("GET "+LivePath, Chain(s.limitConnections(ws), liveMW...))

	mux.Handle("GET "+HealthPath, s.health.ReadinessHandler())
	mux.Handle("GET "+LivenessPath, s.health.LivenessHandler())
	if s.opts.Metrics != nil {
		mux.Handle("GET "+MetricsPath, s.opts.Metrics.Handler())
	}

	outer := []Middleware{RequestID(s.log)}
	if s.opts.Limits.TrustProxy {
		outer = append(outer, RealIP())
	}
	outer = append(outer,
		Logger(),
		Recovery(func(any) {
			if s.opts.Metrics != nil {
				s.opts.Metrics.Panic()
			}
		}),
		SecureHeaders(DefaultSecureHeadersConfig()),
	)
	return Chain(mux, outer...)
}

// handlePage serves a site page annotated with element keys, so the live
// connection can address its nodes.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.opts.Site.Render(r.URL.Path)
	if errors.Is(err, site.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err == nil {
		page, err = dom.Annotate(page)
	}
	if err != nil {
		logging.L(r.Context()).Error("render page", logging.String("path", r.URL.Path), logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(page)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(client.Script())
}

// submitHandler accepts the natively submitted form and redirects to the
// action page. The submission is not stored.
func (s *Server) submitHandler(action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		logging.L(r.Context()).Debug("form submitted", logging.Int("fields", len(r.PostForm)))
		http.Redirect(w, r, action, http.StatusSeeOther)
	})
}

func (s *Server) limitConnections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.conns.Count() >= s.opts.MaxConnections {
			s.log.Warn("live connection rejected", logging.Int("max", s.opts.MaxConnections))
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// serveLive runs one live connection until its transport closes.
func (s *Server) serveLive(ctx context.Context, t *transport.WebSocketTransport) {
	s.conns.Add(t.ID(), t)
	defer s.conns.Remove(t.ID())

	cfg := live.Config{
		Renderer:      s.opts.Site,
		Bind:          s.bind,
		FrameInterval: s.opts.FrameInterval,
		Logger:        s.opts.Logger,
	}
	if s.opts.Metrics != nil {
		cfg.Observer = s.opts.Metrics
	}
	if s.events != nil {
		cfg.Events = s.events
	}

	conn := live.NewConn(t.ID(), t, cfg)
	if err := conn.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("live connection ended", logging.Conn(t.ID()), logging.Err(err))
	}
}

func (s *Server) bind(doc *dom.Document, sched live.Scheduler) lifecycle.Factory {
	return stepper.NewFactory(doc, sched, s.opts.Stepper)
}
