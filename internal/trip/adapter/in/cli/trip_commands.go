package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"beside/internal/shared/logger"
	"beside/internal/trip/adapter/in/push"
	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/domain"
)

func runRequest(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("request")
	pickup := fs.String("pickup", "", "pickup as name,lat,lng")
	dropoff := fs.String("dropoff", "", "dropoff as name,lat,lng")
	prefType := fs.String("type", "", "companion type: female | male | lgbtq | any")
	var communication, physical, identity optBool
	fs.Var(&communication, "communication", "companion may talk")
	fs.Var(&physical, "physical", "physical contact allowed")
	fs.Var(&identity, "identity", "companion may reveal identity")
	var keep optInt
	fs.Var(&keep, "keep-distance", "distance to keep, meters")
	safety := fs.String("safety", "", "Low | Medium | High")
	wait := fs.Bool("wait", true, "poll until a provider accepts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pu, err := parsePlace(*pickup)
	if err != nil {
		return err
	}
	do, err := parsePlace(*dropoff)
	if err != nil {
		return err
	}
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}

	trip, err := r.deps.Session.SubmitRequest(ctx, in.SubmitRequestInput{
		RequesterID: userID,
		Pickup:      pu,
		Dropoff:     do,
		Preferences: []domain.Preference{{
			Type:          *prefType,
			Communication: communication.v,
			Physical:      physical.v,
			Identity:      identity.v,
			KeepDistance:  keep.v,
			Safety:        *safety,
		}},
	})
	if err != nil {
		return err
	}
	r.printTrip(trip)
	if !*wait {
		return nil
	}

	r.printf("waiting for a provider...\n")
	return r.follow(ctx, userID, trip.ID, []domain.Status{domain.StatusAccepted}, func(s domain.TripRequest) {
		r.printf("  status %s\n", s.Status)
	})
}

func runStatus(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("status")
	tripID := fs.String("trip", "", "trip id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireTrip(fs, *tripID); err != nil {
		return err
	}

	trip, err := r.deps.Session.Refresh(ctx, *tripID)
	if err != nil {
		return err
	}
	r.printTrip(trip)
	r.printProvider(ctx, trip)
	return nil
}

// runTrack ведёт маршрут к посадке (accepted) или высадке (started) до конца поездки
func runTrack(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("track")
	tripID := fs.String("trip", "", "trip id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireTrip(fs, *tripID); err != nil {
		return err
	}

	trip, err := r.deps.Session.Refresh(ctx, *tripID)
	if err != nil {
		return err
	}
	var dest domain.Place
	switch trip.Status {
	case domain.StatusAccepted:
		dest = trip.Pickup
	case domain.StatusStarted:
		dest = trip.Dropoff
	default:
		return fmt.Errorf("%w: trip %s is %s", domain.ErrInvalidTransition, trip.ID, trip.Status)
	}
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}

	tracker := r.deps.Tracker()
	defer tracker.Stop()

	err = tracker.Start(ctx, dest.Position(),
		func(rt domain.Route) {
			r.printf("route: %s, %s (%d points)\n", rt.DistanceText, rt.DurationText, len(rt.Points))
		},
		func(err error) {
			r.printf("route unavailable: %v\n", err)
		},
	)
	if err != nil {
		return err
	}
	r.printf("tracking trip %s to %s\n", trip.ID, dest.Name)
	r.printProvider(ctx, trip)

	err = r.follow(ctx, userID, trip.ID, []domain.Status{domain.StatusEnded}, func(s domain.TripRequest) {
		if s.Status == domain.StatusStarted && dest != trip.Dropoff {
			dest = trip.Dropoff
			tracker.SetDestination(dest.Position())
			r.printf("trip started, tracking to %s\n", dest.Name)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func transitionCommand(status domain.Status) func(context.Context, *Runner, []string) error {
	return func(ctx context.Context, r *Runner, args []string) error {
		fs := r.flags(string(status))
		tripID := fs.String("trip", "", "trip id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := requireTrip(fs, *tripID); err != nil {
			return err
		}
		userID, err := r.userID(ctx)
		if err != nil {
			return err
		}

		trip, err := r.deps.Session.Transition(ctx, *tripID, status, userID)
		if err != nil {
			return err
		}
		r.printTrip(trip)
		return nil
	}
}

func runCancel(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("cancel")
	tripID := fs.String("trip", "", "trip id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireTrip(fs, *tripID); err != nil {
		return err
	}
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}

	if err := r.deps.Session.Cancel(ctx, *tripID, userID); err != nil {
		return err
	}
	r.printf("trip %s cancelled\n", *tripID)
	return nil
}

func runFeedback(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("feedback")
	tripID := fs.String("trip", "", "trip id")
	rating := fs.Int("rating", -1, "rating 0..5")
	text := fs.String("text", "", "feedback text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireTrip(fs, *tripID); err != nil {
		return err
	}
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}

	rec, err := r.deps.Feedback.Submit(ctx, in.FeedbackInput{
		TripID:   *tripID,
		UserID:   userID,
		Rating:   *rating,
		Feedback: *text,
	})
	if err != nil {
		return err
	}
	r.printf("feedback saved for trip %s (%d/5)\n", rec.TripID, rec.Rating)
	return nil
}

// follow опрашивает поездку до targets. Push, если включён, ускоряет обновления.
func (r *Runner) follow(ctx context.Context, userID, tripID string, targets []domain.Status, onSnapshot func(domain.TripRequest)) error {
	// push-горутина завершается до возврата: bootstrap закрывает брокер сразу после команды
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.startPush(ctx, &wg, userID)

	p := r.deps.Session.PollUntil(ctx, tripID, targets, in.PollOptions{
		Interval:    r.deps.Polling.Interval,
		Timeout:     r.deps.Polling.Timeout,
		MaxFailures: r.deps.Polling.MaxFailures,
	})
	defer p.Cancel()

	for snap := range p.Snapshots() {
		onSnapshot(snap)
	}
	return p.Err()
}

func (r *Runner) startPush(ctx context.Context, wg *sync.WaitGroup, userID string) {
	if r.deps.Push == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		l, err := r.deps.Push(ctx, userID)
		if err != nil {
			r.deps.Log.Warn(logger.Entry{Action: "push_unavailable", Message: err.Error(), Error: logger.Err(err)})
			return
		}
		if l == nil {
			return
		}
		_ = push.Run(ctx, l, func(ev domain.Event) {
			r.deps.Session.HandleEvent(ctx, ev)
		}, r.deps.Log)
	}()
}
