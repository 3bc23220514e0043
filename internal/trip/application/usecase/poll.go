package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/domain"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultPollMaxFailures = 3
)

// poll: один запущенный опрос статуса поездки
type poll struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan domain.TripRequest

	mu  sync.Mutex
	err error
}

var _ in.Poll = (*poll)(nil)

func (p *poll) Snapshots() <-chan domain.TripRequest { return p.ch }

func (p *poll) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *poll) Cancel() { p.cancel() }

func (p *poll) finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.cancel()
	close(p.ch)
}

// PollUntil опрашивает поездку, пока её статус не войдёт в targets.
// Новый опрос той же поездки отменяет предыдущий.
func (c *SessionController) PollUntil(ctx context.Context, tripID string, targets []domain.Status, opts in.PollOptions) in.Poll {
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultPollMaxFailures
	}

	var (
		pctx   context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		pctx, cancel = context.WithCancel(ctx)
	}
	p := &poll{ctx: pctx, cancel: cancel, ch: make(chan domain.TripRequest)}

	st := c.state(tripID)
	c.mu.Lock()
	prev := st.poll
	st.poll = p
	c.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	go c.runPoll(p, tripID, targets, opts)
	return p
}

func (c *SessionController) runPoll(p *poll, tripID string, targets []domain.Status, opts in.PollOptions) {
	log := c.log.WithTrip(tripID)
	failures := 0

	result := func() error {
		for {
			snap, err := c.fetch(p.ctx, tripID)
			if p.ctx.Err() != nil {
				return pollStopReason(p.ctx)
			}

			switch {
			case err == nil:
				failures = 0
				if aerr := c.apply(p.ctx, *snap); aerr == nil {
					select {
					case p.ch <- *snap:
					case <-p.ctx.Done():
						return pollStopReason(p.ctx)
					}
				} else if !errors.Is(aerr, domain.ErrStaleRead) {
					return aerr
				}
				if done, derr := pollOutcome(c.Status(tripID), targets); done {
					return derr
				}
			case errors.Is(err, domain.ErrNetwork):
				failures++
				log.Warn(logger.Entry{
					Action:     "trip_poll_failed",
					Message:    err.Error(),
					Error:      logger.Err(err),
					Additional: map[string]any{"consecutive_failures": failures},
				})
				if failures > opts.MaxFailures {
					return err
				}
			default:
				return err
			}

			select {
			case <-p.ctx.Done():
				return pollStopReason(p.ctx)
			case <-time.After(opts.Interval):
			}
		}
	}()

	c.mu.Lock()
	if st, ok := c.trips[tripID]; ok && st.poll == p {
		st.poll = nil
		c.pruneLocked(tripID)
	}
	c.mu.Unlock()

	if result != nil && !errors.Is(result, context.Canceled) {
		log.Warn(logger.Entry{Action: "trip_poll_stopped", Message: result.Error(), Error: logger.Err(result)})
	} else {
		log.Debug(logger.Entry{Action: "trip_poll_stopped", Message: string(c.Status(tripID))})
	}
	p.finish(result)
}

// pollOutcome решает, завершён ли опрос при текущем статусе
func pollOutcome(current domain.Status, targets []domain.Status) (bool, error) {
	for _, t := range targets {
		if current == t {
			return true, nil
		}
	}
	if !current.Terminal() {
		return false, nil
	}
	if current == domain.StatusRejected {
		return true, fmt.Errorf("%w: trip rejected", domain.ErrNoProviderAvailable)
	}
	return true, fmt.Errorf("%w: %s", domain.ErrTripClosed, current)
}

func pollStopReason(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrPollTimeout
	}
	return context.Canceled
}
