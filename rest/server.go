/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gmbyapa/krest/pkg/async"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/gmbyapa/krest/rest/shaper"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
)

type Config struct {
	// Host is the address the http listener binds to (eg: ':8082').
	Host string
	// CORS allows cross origin GET requests from any origin.
	CORS            bool
	ShutdownTimeout time.Duration
	Logger          log.Logger
	MetricsReporter metrics.Reporter
}

func NewConfig() *Config {
	return &Config{
		Host:            `:8082`,
		ShutdownTimeout: 10 * time.Second,
		Logger:          log.NewNoopLogger(),
		MetricsReporter: metrics.NoopReporter(),
	}
}

func (c *Config) validate() error {
	if c.Host == `` {
		return errors.New(`[Host] cannot be empty`)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New(`[ShutdownTimeout] must be positive`)
	}

	if c.Logger == nil {
		return errors.New(`[Logger] cannot be nil`)
	}

	if c.MetricsReporter == nil {
		return errors.New(`[MetricsReporter] cannot be nil`)
	}

	return nil
}

// Server serves cluster metadata over http.
type Server struct {
	config          *Config
	handler         http.Handler
	instrumentation *instrumentation
	logger          log.Logger
}

func NewServer(config *Config, resolver Resolver) (*Server, error) {
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, `invalid rest config`)
	}

	logger := config.Logger.NewLog(log.Prefixed(`rest`))
	ins := newInstrumentation(config.MetricsReporter, logger)

	return &Server{
		config:          config,
		handler:         newRouter(config, resolver, ins, logger),
		instrumentation: ins,
		logger:          logger,
	}, nil
}

func newRouter(config *Config, resolver Resolver, ins *instrumentation, logger log.Logger) http.Handler {
	h := &handler{resolver: resolver, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc(`/topics`, h.listTopics).Methods(http.MethodGet)
	r.HandleFunc(`/topics/{topic}`, h.getTopic).Methods(http.MethodGet)
	r.HandleFunc(`/topics/{topic}/partitions`, h.listPartitions).Methods(http.MethodGet)
	r.HandleFunc(`/topics/{topic}/partitions/{partition}`, h.getPartition).Methods(http.MethodGet)
	r.HandleFunc(`/healthz`, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	r.NotFoundHandler = ins.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, shaper.DefaultMediaType, http.StatusNotFound,
			ErrorMessage{ErrorCode: http.StatusNotFound, Message: `HTTP 404 Not Found`}, logger)
	}))
	r.MethodNotAllowedHandler = ins.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, shaper.DefaultMediaType, http.StatusMethodNotAllowed,
			ErrorMessage{ErrorCode: http.StatusMethodNotAllowed, Message: `HTTP 405 Method Not Allowed`}, logger)
	}))

	r.Use(ins.middleware)

	var next http.Handler = r
	if config.CORS {
		next = handlers.CORS(
			handlers.AllowedOrigins([]string{`*`}),
			handlers.AllowedMethods([]string{http.MethodGet}),
			handlers.AllowedHeaders([]string{`Accept`, RequestIDHeader}),
		)(next)
	}

	next = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger: logger}))(next)

	return requestID(next)
}

// Handler returns the fully wired http handler (routes and middlewares).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run binds the listener and serves until the RunGroup starts stopping.
func (s *Server) Run(opts *async.Opts) error {
	lis, err := net.Listen(`tcp`, s.config.Host)
	if err != nil {
		return errors.Wrapf(err, `cannot listen on %s`, s.config.Host)
	}

	srv := &http.Server{Handler: s.handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	s.logger.Info(fmt.Sprintf(`listening on %s`, lis.Addr()))
	opts.Ready()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, `http server stopped`)
	case <-opts.Stopping():
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, `http server shutdown failed`)
	}

	s.instrumentation.close()
	s.logger.Info(`http server stopped`)

	return nil
}
