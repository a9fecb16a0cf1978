// Package server exposes hybrid programs over the network: a Connect RPC
// service for running and encoding, and a language server for editors.
package server

import (
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/malbolge"
)

var log = commonlog.GetLogger("apophis.server")

var errStopped = errors.New("server: stopped")

// Procedure paths. Every message is a google.protobuf.Struct.
const (
	RunProcedure            = "/apophis.v1.EvalService/Run"
	ExecuteProcedure        = "/apophis.v1.EvalService/Execute"
	EncodeProcedure         = "/apophis.v1.EvalService/Encode"
	CreateSessionProcedure  = "/apophis.v1.SessionService/CreateSession"
	DestroySessionProcedure = "/apophis.v1.SessionService/DestroySession"
	CompleteProcedure       = "/apophis.v1.SessionService/Complete"
)

// Server serves the RPC procedures over HTTP to Connect and gRPC-Web
// clients.
type Server struct {
	pool     *Pool
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	dispatcher *hybrid.Dispatcher
	encoder    Encoder
	exotic     []malbolge.Option
	workers    int
	sessionTTL time.Duration
}

// WithDispatcher sets the dispatcher used by Run.
func WithDispatcher(d *hybrid.Dispatcher) Option {
	return func(c *serverConfig) { c.dispatcher = d }
}

// WithEncoder sets the encoder used by Encode.
func WithEncoder(e Encoder) Option {
	return func(c *serverConfig) { c.encoder = e }
}

// WithExoticOptions sets machine options applied to every Execute call.
func WithExoticOptions(opts ...malbolge.Option) Option {
	return func(c *serverConfig) { c.exotic = opts }
}

// WithWorkers bounds concurrent evaluations. The default is one per CPU.
func WithWorkers(n int) Option {
	return func(c *serverConfig) { c.workers = n }
}

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(d time.Duration) Option {
	return func(c *serverConfig) { c.sessionTTL = d }
}

// New creates a Server.
func New(opts ...Option) *Server {
	cfg := &serverConfig{sessionTTL: 30 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = hybrid.New()
	}

	s := &Server{
		pool:     NewPool(cfg.workers),
		sessions: NewSessionStore(),
		mux:      http.NewServeMux(),
	}

	evalSvc := NewEvalService(cfg.dispatcher, cfg.encoder, cfg.exotic, s.pool, s.sessions)
	sessionSvc := NewSessionService(s.sessions)

	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, evalSvc.Run))
	s.mux.Handle(ExecuteProcedure, connect.NewUnaryHandler(ExecuteProcedure, evalSvc.Execute))
	s.mux.Handle(EncodeProcedure, connect.NewUnaryHandler(EncodeProcedure, evalSvc.Encode))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, sessionSvc.CreateSession))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, sessionSvc.DestroySession))
	s.mux.Handle(CompleteProcedure, connect.NewUnaryHandler(CompleteProcedure, sessionSvc.Complete))

	s.stopSweeper = s.sessions.StartSweeper(cfg.sessionTTL/6+time.Second, cfg.sessionTTL)
	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("listening on %s", addr)
	log.Infof("  Connect (HTTP/JSON): http://%s%s", addr, RunProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.pool.Stop()
}
