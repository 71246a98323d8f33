package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drives periodic sweeps in-process for deployments without
// an external scheduler. Deployments with cron should hit the internal
// sweep endpoint instead and leave the processor disabled.
type Processor struct {
	service  *Service
	interval time.Duration
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start begins the sweep loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "sweep_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting sweep processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down sweep processor")
			return
		case <-ticker.C:
			if _, err := p.service.SweepExpired(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to sweep expired holds")
			}
		}
	}
}
