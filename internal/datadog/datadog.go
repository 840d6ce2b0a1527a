package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Enabled   bool     `json:"enabled"`
	AgentAddr string   `json:"agent_addr"`
	Namespace string   `json:"namespace"`
	Tags      []string `json:"tags"`
}

var dogstatsd *statsd.Client
var warnOnError bool

func InitMetrics(cfg Config) {
	if !cfg.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return
	}

	var err error
	dogstatsd, err = statsd.New(cfg.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}

	dogstatsd.Namespace = cfg.Namespace
	dogstatsd.Tags = cfg.Tags
	warnOnError = true

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil && warnOnError {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Incr(name string, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Incr(name, tags, 1)
		if err != nil && warnOnError {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

func Close() {
	if dogstatsd != nil {
		if err := dogstatsd.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close DogStatsD client")
		}
		dogstatsd = nil
	}
}
