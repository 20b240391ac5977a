package main

import (
	"fmt"

	"datalake/internal/config"
	"datalake/internal/logging"
	"datalake/internal/metrics"
	"datalake/internal/metrics/datadog"
	"datalake/internal/metrics/prompush"
)

// setupMetrics installs the configured backend. The returned func flushes it
// and must run after the pipeline finishes.
func setupMetrics(cfg *config.Config) (func(), error) {
	log := logging.With("metrics")
	var b metrics.Backend
	switch cfg.Metrics.Backend {
	case "prometheus":
		pb, err := prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		b = pb
		log.Info().Str("url", cfg.Metrics.PushgatewayURL).Str("job", cfg.Job).Msg("metrics: pushgateway backend")
	case "datadog":
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.StatsdAddr,
			Namespace:  "datalake.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		b = db
		log.Info().Str("addr", cfg.Metrics.StatsdAddr).Msg("metrics: dogstatsd backend")
	default:
		log.Debug().Msg("metrics: disabled")
		return func() {}, nil
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics: flush failed")
		}
	}, nil
}
