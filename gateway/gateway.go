/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/Shopify/sarama"
	"github.com/gmbyapa/krest/kafka"
	"github.com/gmbyapa/krest/kafka/adaptors/franz"
	"github.com/gmbyapa/krest/kafka/adaptors/kafkago"
	"github.com/gmbyapa/krest/kafka/adaptors/librd"
	saramaAdaptor "github.com/gmbyapa/krest/kafka/adaptors/sarama"
	"github.com/gmbyapa/krest/metadata"
	"github.com/gmbyapa/krest/pkg/async"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/gmbyapa/krest/rest"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tryfix/log"
)

// Gateway runs the REST API (and the metrics endpoint when enabled) over a single kafka admin client.
type Gateway struct {
	config *Config
	admin  kafka.Admin
	server *rest.Server
	group  *async.RunGroup
	logger log.Logger
}

// New builds a Gateway with the admin client selected by Config.Admin.Adaptor.
func New(config *Config) (*Gateway, error) {
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, `invalid config`)
	}
	config.setUp()

	admin, err := newAdmin(config)
	if err != nil {
		return nil, errors.Wrapf(err, `cannot create %s admin`, config.Admin.Adaptor)
	}

	g, err := NewWithAdmin(config, admin)
	if err != nil {
		_ = admin.Close()
		return nil, err
	}

	return g, nil
}

// NewWithAdmin builds a Gateway over an existing admin client. The Gateway owns the admin and closes it on stop.
func NewWithAdmin(config *Config, admin kafka.Admin) (*Gateway, error) {
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, `invalid config`)
	}
	config.setUp()

	logger := config.Logger.NewLog(log.Prefixed(`gateway`))
	instrumented := kafka.NewInstrumentedAdmin(admin, config.MetricsReporter)

	restConf := rest.NewConfig()
	restConf.Host = config.Host
	restConf.CORS = config.CORS
	restConf.ShutdownTimeout = config.ShutdownTimeout
	restConf.Logger = config.Logger
	restConf.MetricsReporter = config.MetricsReporter

	server, err := rest.NewServer(restConf, metadata.NewResolver(instrumented, config.Logger))
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config: config,
		admin:  instrumented,
		server: server,
		group:  async.NewRunGroup(logger),
		logger: logger,
	}

	g.group.Add(`rest`, server.Run)
	if config.Metrics.Enabled {
		g.group.Add(`metrics`, g.serveMetrics)
	}

	return g, nil
}

func newAdmin(config *Config) (kafka.Admin, error) {
	conf := config.Admin
	switch conf.Adaptor {
	case AdaptorLibrd:
		return librd.NewAdmin(conf.BootstrapServers,
			librd.WithLogger(config.Logger),
			librd.WithTimeout(conf.Timeout),
			librd.WithClientID(conf.ClientID))
	case AdaptorFranz:
		return franz.NewAdmin(conf.BootstrapServers,
			franz.WithLogger(config.Logger),
			franz.WithTimeout(conf.Timeout),
			franz.WithClientID(conf.ClientID))
	case AdaptorKafkaGo:
		return kafkago.NewAdmin(conf.BootstrapServers,
			kafkago.WithLogger(config.Logger),
			kafkago.WithTimeout(conf.Timeout),
			kafkago.WithClientID(conf.ClientID))
	case AdaptorSarama:
		version, err := sarama.ParseKafkaVersion(conf.KafkaVersion)
		if err != nil {
			return nil, err
		}

		return saramaAdaptor.NewAdmin(conf.BootstrapServers,
			saramaAdaptor.WithLogger(config.Logger),
			saramaAdaptor.WithKafkaVersion(version),
			saramaAdaptor.WithTimeout(conf.Timeout),
			saramaAdaptor.WithClientID(conf.ClientID))
	}

	return nil, fmt.Errorf(`unknown adaptor %s`, conf.Adaptor)
}

// Handler returns the REST API handler.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler()
}

// Run blocks until Stop is called or one of the listeners fails. The admin client is closed before Run returns.
func (g *Gateway) Run() error {
	g.logger.Info(fmt.Sprintf(`starting with %s adaptor, bootstrap servers %v`,
		g.config.Admin.Adaptor, g.config.Admin.BootstrapServers))

	err := g.group.Run()
	if closeErr := g.admin.Close(); closeErr != nil {
		g.logger.Warn(fmt.Sprintf(`admin close failed due to %s`, closeErr))
	}

	return err
}

// Ready blocks until every listener is bound.
func (g *Gateway) Ready() error {
	return g.group.Ready()
}

// Stop stops every listener and waits until Run returns.
func (g *Gateway) Stop() {
	g.group.Stop()
}

func (g *Gateway) serveMetrics(opts *async.Opts) error {
	r := mux.NewRouter()
	r.Handle(`/metrics`, promhttp.Handler()).Methods(http.MethodGet)

	lis, err := net.Listen(`tcp`, g.config.Metrics.Host)
	if err != nil {
		return errors.Wrapf(err, `cannot listen on %s`, g.config.Metrics.Host)
	}

	srv := &http.Server{Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	g.logger.Info(fmt.Sprintf(`metrics listening on %s`, lis.Addr()))
	opts.Ready()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, `metrics server stopped`)
	case <-opts.Stopping():
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(ctx)
}
