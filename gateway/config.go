/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package gateway

import (
	"os"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/gmbyapa/krest/pkg/errors"
	"github.com/gmbyapa/krest/rest"
	"github.com/tryfix/log"
	"github.com/tryfix/metrics"
	"gopkg.in/yaml.v3"
)

// Adaptor names the kafka client library the gateway talks to the cluster with.
type Adaptor string

const (
	AdaptorSarama  Adaptor = `sarama`
	AdaptorLibrd   Adaptor = `librd`
	AdaptorFranz   Adaptor = `franz`
	AdaptorKafkaGo Adaptor = `kafkago`
)

type AdminConfig struct {
	// Adaptor kafka client implementation (sarama(default), librd, franz, kafkago)
	Adaptor Adaptor `yaml:"adaptor"`
	// BootstrapServers a list of kafka Brokers
	BootstrapServers []string `yaml:"bootstrap_servers"`
	// KafkaVersion broker protocol version (sarama only, eg: 2.4.0)
	KafkaVersion string `yaml:"kafka_version"`
	ClientID     string `yaml:"client_id"`
	// Timeout upper bound of a single admin request
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	// Enabled serves /metrics on Host
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	System    string `yaml:"system"`
	Subsystem string `yaml:"subsystem"`
}

type LogConfig struct {
	// Level one of TRACE, DEBUG, INFO(default), WARN, ERROR, FATAL
	Level    string `yaml:"level"`
	Colors   bool   `yaml:"colors"`
	FilePath bool   `yaml:"file_path"`
}

type Config struct {
	// Host http listener address of the REST API(eg: :8082)
	Host string `yaml:"host"`
	// CORS allow cross origin GET requests
	CORS            bool          `yaml:"cors"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Admin           AdminConfig   `yaml:"admin"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Log             LogConfig     `yaml:"log"`

	// Logger overrides the logger built from Log(default: built from Log)
	Logger log.Logger `yaml:"-"`
	// MetricsReporter overrides the reporter built from Metrics(default: prometheus when enabled, noop otherwise)
	MetricsReporter metrics.Reporter `yaml:"-"`
}

func NewConfig() *Config {
	return &Config{
		Host:            `:8082`,
		ShutdownTimeout: 10 * time.Second,
		Admin: AdminConfig{
			Adaptor:          AdaptorSarama,
			BootstrapServers: []string{`localhost:9092`},
			KafkaVersion:     `2.4.0`,
			ClientID:         `krest`,
			Timeout:          10 * time.Second,
		},
		Metrics: MetricsConfig{
			Host:      `:9100`,
			System:    `krest`,
			Subsystem: `gateway`,
		},
		Log: LogConfig{
			Level:  `INFO`,
			Colors: true,
		},
	}
}

// LoadConfig reads a yaml config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, `cannot read config file %s`, path)
	}

	conf := NewConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, `cannot parse config file %s`, path)
	}

	return conf, nil
}

var levels = map[string]log.Level{
	`TRACE`: log.TRACE,
	`DEBUG`: log.DEBUG,
	`INFO`:  log.INFO,
	`WARN`:  log.WARN,
	`ERROR`: log.ERROR,
	`FATAL`: log.FATAL,
}

func parseLevel(level string) (log.Level, error) {
	lvl, ok := levels[strings.ToUpper(level)]
	if !ok {
		return lvl, errors.Errorf(`unknown log level %s`, level)
	}

	return lvl, nil
}

func (c *Config) validate() error {
	if c.Host == `` {
		return errors.New(`[Host] cannot be empty`)
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New(`[ShutdownTimeout] must be positive`)
	}

	if len(c.Admin.BootstrapServers) < 1 {
		return errors.New(`[Admin.BootstrapServers] cannot be empty`)
	}

	switch c.Admin.Adaptor {
	case AdaptorSarama:
		if _, err := sarama.ParseKafkaVersion(c.Admin.KafkaVersion); err != nil {
			return errors.Errorf(`[Admin.KafkaVersion] %s`, err)
		}
	case AdaptorLibrd, AdaptorFranz, AdaptorKafkaGo:
	default:
		return errors.Errorf(`[Admin.Adaptor] unknown adaptor %s`, c.Admin.Adaptor)
	}

	if c.Admin.Timeout <= 0 {
		return errors.New(`[Admin.Timeout] must be positive`)
	}

	if c.Metrics.Enabled && c.Metrics.Host == `` {
		return errors.New(`[Metrics.Host] cannot be empty when metrics are enabled`)
	}

	if c.Metrics.Enabled && c.Metrics.Host == c.Host {
		return errors.New(`[Metrics.Host] cannot be the same as [Host]`)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.Errorf(`[Log.Level] %s`, err)
	}

	return nil
}

func (c *Config) setUp() {
	if c.Logger == nil {
		lvl, _ := parseLevel(c.Log.Level)
		c.Logger = log.Constructor.Log(
			log.WithLevel(lvl),
			log.WithColors(c.Log.Colors),
			log.WithFilePath(c.Log.FilePath),
			log.WithCtxExtractor(rest.LogContextExtractor),
		)
	}

	if c.MetricsReporter == nil {
		c.MetricsReporter = metrics.NoopReporter()
		if c.Metrics.Enabled {
			c.MetricsReporter = metrics.PrometheusReporter(metrics.ReporterConf{
				System:    c.Metrics.System,
				Subsystem: c.Metrics.Subsystem,
			})
		}
	}
}
