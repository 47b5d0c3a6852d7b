package forecast

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gridwise/utility-rates/internal/app/metrics"
	"github.com/gridwise/utility-rates/internal/app/system"
	"github.com/gridwise/utility-rates/pkg/logger"
)

var _ system.Service = (*Recomputer)(nil)

// Recomputer refreshes stored forecasts on a cron schedule so they track
// tariff changes. Each run fans the forecasts out over a fixed pool of
// workers.
type Recomputer struct {
	service  *Service
	log      *logger.Logger
	schedule cron.Schedule
	workers  int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRecomputer creates a lifecycle-managed forecast recomputer. The schedule
// is a standard five-field cron expression; workers sizes the recompute pool.
func NewRecomputer(service *Service, scheduleSpec string, workers int, log *logger.Logger) (*Recomputer, error) {
	if log == nil {
		log = logger.NewDefault("forecast-recomputer")
	}
	if workers < 1 {
		workers = 1
	}

	schedule, err := cron.ParseStandard(scheduleSpec)
	if err != nil {
		return nil, err
	}

	return &Recomputer{
		service:  service,
		log:      log,
		schedule: schedule,
		workers:  workers,
	}, nil
}

func (r *Recomputer) Name() string { return "forecast-recomputer" }

func (r *Recomputer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			next := r.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				r.run(runCtx)
			}
		}
	}()

	r.log.WithField("workers", r.workers).Info("forecast recomputer started")
	return nil
}

func (r *Recomputer) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("forecast recomputer stopped")
	return nil
}

func (r *Recomputer) run(ctx context.Context) {
	if r.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	forecasts, err := r.service.ListAll(ctx)
	if err != nil {
		r.log.WithError(err).Warn("forecast recompute scan failed")
		return
	}
	if len(forecasts) == 0 {
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				start := time.Now()
				_, err := r.service.Recompute(ctx, forecasts[i])
				metrics.RecordForecastComputation("recompute", time.Since(start), err == nil)
				if err != nil {
					r.log.WithError(err).
						WithField("forecast_id", forecasts[i].ID).
						Warn("forecast recompute failed")
				}
			}
		}()
	}

	for i := range forecasts {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	r.log.WithField("forecasts", len(forecasts)).Info("forecast recompute pass complete")
}
