package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Poller reconciles the mirror on a cron schedule.
type Poller struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// NewPoller creates a poller for schedule, e.g. "@every 30s".
func NewPoller(service *Service, schedule string, logger *zap.Logger) *Poller {
	return &Poller{
		cron:     cron.New(),
		service:  service,
		schedule: schedule,
		timeout:  20 * time.Second,
		logger:   logger,
	}
}

// Start schedules the poll job and starts the cron runner.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}
	if _, err := p.cron.AddFunc(p.schedule, func() { p.poll(ctx) }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", p.schedule, err)
	}

	p.logger.Info("Starting registry poller", zap.String("schedule", p.schedule))
	p.cron.Start()
	p.running = true
	return nil
}

// Stop stops the cron runner and waits for a running poll.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.logger.Info("Stopping registry poller")
	done := p.cron.Stop()
	<-done.Done()
	p.running = false
}

// poll runs one reconciliation. Nothing happens before a registry is known.
func (p *Poller) poll(parent context.Context) {
	if parent.Err() != nil || p.service.mirror.AppID() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	if err := p.service.refresh(ctx); err != nil {
		p.logger.Warn("Scheduled reconciliation failed", zap.Error(err))
		return
	}
	if signer, ok := p.service.identity.Current(); ok {
		if err := p.service.refreshBalance(ctx, signer); err != nil {
			p.logger.Warn("Scheduled balance refresh failed", zap.Error(err))
		}
	}
}
