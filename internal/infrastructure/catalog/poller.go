// Package catalog keeps an in-memory snapshot of the offer catalog fresh by
// polling the backing store on a fixed interval.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
)

// Snapshot is one consistent view of the catalog.
type Snapshot struct {
	Offers      []domain.Offer
	Experiments []domain.Experiment
	LoadedAt    time.Time
}

// Poller serves fetches from its latest snapshot and implements both
// OfferCatalog and ExperimentSource.
type Poller struct {
	offers      interfaces.OfferCatalog
	experiments interfaces.ExperimentSource
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller polls offers, and experiments when non-nil, every interval.
func NewPoller(offers interfaces.OfferCatalog, experiments interfaces.ExperimentSource, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		offers:      offers,
		experiments: experiments,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// Start loads the first snapshot synchronously and then refreshes in the
// background until Stop. A failed first load is returned and nothing starts.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)
	return nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("catalog refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// Refresh fetches a new snapshot and publishes it. If ctx ends before the
// fetch completes the result is discarded.
func (p *Poller) Refresh(ctx context.Context) error {
	offers, err := p.offers.FetchActiveOffers(ctx)
	if err != nil {
		return domain.Wrap(domain.ErrCatalogFetch, err)
	}
	var exps []domain.Experiment
	if p.experiments != nil {
		exps, err = p.experiments.FetchRunningExperiments(ctx)
		if err != nil {
			return domain.Wrap(domain.ErrExperimentFetch, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.current.Store(&Snapshot{Offers: offers, Experiments: exps, LoadedAt: p.now()})
	p.logger.Info("catalog refreshed", "offers", len(offers), "experiments", len(exps))
	return nil
}

// Snapshot returns the latest snapshot, or nil before the first load.
func (p *Poller) Snapshot() *Snapshot {
	return p.current.Load()
}

func (p *Poller) FetchActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := p.current.Load()
	if snap == nil {
		return nil, domain.ErrCatalogNotLoaded
	}
	return append([]domain.Offer(nil), snap.Offers...), nil
}

func (p *Poller) FetchRunningExperiments(ctx context.Context) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := p.current.Load()
	if snap == nil {
		return nil, domain.ErrCatalogNotLoaded
	}
	return append([]domain.Experiment(nil), snap.Experiments...), nil
}

// Stop cancels the timer and any in-flight refresh, then waits for the loop
// to exit. It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
