package poller

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"cowin-notifier/matcher"
)

// DefaultInterval between the end of a pass and the start of the next, in seconds
const DefaultInterval = 300

// Runner runs one pass over the waiting list.
type Runner interface {
	Pass(ctx context.Context) (matcher.PassResult, error)
}

// Poller runs passes one after the other and waits the full interval after
// each one before starting the next.
type Poller struct {
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger
}

// New godoc
func New(runner Runner, intervalSeconds int, logger zerolog.Logger) *Poller {
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultInterval
	}
	return &Poller{runner: runner, interval: time.Duration(intervalSeconds) * time.Second, logger: logger}
}

// Run starts polling right away and blocks until the context is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("Polling started")
	for {
		p.RunOnce(ctx)
		if err := p.wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}
	p.logger.Info().Msg("Polling stopped")
	return nil
}

// wait schedules a single wake up one interval from now on its own scheduler,
// so the scheduler is never touched by a job that already ran.
func (p *Poller) wait(ctx context.Context) error {
	scheduler := gocron.NewScheduler(time.UTC)
	wake := make(chan struct{}, 1)
	_, err := scheduler.Every(p.interval).WaitForSchedule().LimitRunsTo(1).Do(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return errors.Wrap(err, "poller: schedule next pass")
	}
	scheduler.StartAsync()
	defer func() {
		scheduler.Clear()
		scheduler.Stop()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	}
}

// RunOnce runs a single pass. Errors and panics are logged, the polling loop
// never stops because of one pass.
func (p *Poller) RunOnce(ctx context.Context) (result matcher.PassResult, err error) {
	if ctx.Err() != nil {
		return matcher.PassResult{}, ctx.Err()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("poller: pass panicked: %v", r)
			p.logger.Error().Err(err).Msg("Polling pass failed")
		}
	}()
	result, err = p.runner.Pass(ctx)
	if err != nil {
		p.logger.Error().Err(err).Str("pass_id", result.ID).Msg("Polling pass failed")
	}
	return result, err
}
