package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"beside/internal/shared/auth"
	"beside/internal/trip/adapter/in/push"
	"beside/internal/trip/adapter/out/location"
	"beside/internal/trip/application/usecase"
	"beside/internal/trip/domain"
)

func runSession(ctx context.Context, r *Runner, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: session set|show", ErrUsage)
	}
	switch args[0] {
	case "set":
		fs := r.flags("session set")
		token := fs.String("token", "", "token returned by login")
		role := fs.String("role", "", "User | Provider")
		approved := fs.Bool("approved", false, "provider is approved")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *token == "" {
			fs.Usage()
			return fmt.Errorf("%w: -token is required", ErrUsage)
		}
		if err := auth.SaveSession(ctx, r.deps.Store, auth.Session{Token: *token, Role: *role, Approved: *approved}); err != nil {
			return err
		}
		r.printf("session saved\n")
		return nil

	case "show":
		s, err := auth.LoadSession(ctx, r.deps.Store)
		if err != nil {
			return err
		}
		r.printf("role: %s approved: %t\n", s.Role, s.Approved)
		claims, err := auth.Inspect(s.Token)
		if err != nil {
			return err
		}
		r.printf("user id: %s\n", claims.UserID)
		if claims.ExpiresAt != nil {
			state := "valid"
			if claims.Expired(time.Now()) {
				state = "expired"
			}
			r.printf("expires at: %s (%s)\n", claims.ExpiresAt.Time.Format(time.RFC3339), state)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown session action %q", ErrUsage, args[0])
	}
}

func runWhoami(ctx context.Context, r *Runner, _ []string) error {
	u, err := r.deps.Accounts.CurrentUser(ctx)
	if err != nil {
		return err
	}
	r.printf("%s (%s) role=%s available=%t\n", u.UserName, u.ID, u.Role, u.Availability)
	return nil
}

func runHistory(ctx context.Context, r *Runner, args []string) error {
	fs := r.flags("history")
	roleFlag := fs.String("role", "", "user | provider (default: from session)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role := domain.Role(*roleFlag)
	if role == "" {
		role = domain.RoleRequester
		if s, err := auth.LoadSession(ctx, r.deps.Store); err == nil && s.Role == "Provider" {
			role = domain.RoleProvider
		}
	}
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}

	trips, err := r.deps.History.List(ctx, role, userID)
	if err != nil {
		return err
	}
	if len(trips) == 0 {
		r.printf("no trips yet\n")
		return nil
	}
	for _, t := range trips {
		r.printf("%s  %s -> %s  %d/5  %s\n", t.TripID, t.TripStart, t.TripEnd, t.Rating, t.Feedback)
	}
	if role == domain.RoleProvider {
		r.printf("average rating: %.1f\n", usecase.AverageRating(trips))
	}
	return nil
}

func runProviders(ctx context.Context, r *Runner, _ []string) error {
	pos, err := r.deps.Feed.Current(ctx)
	if err != nil {
		return err
	}
	providers, err := r.deps.Providers.Nearby(ctx, pos)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		r.printf("no providers nearby\n")
		return nil
	}

	sort.Slice(providers, func(i, j int) bool {
		return location.DistanceMeters(pos, providers[i].CurrentLocation) < location.DistanceMeters(pos, providers[j].CurrentLocation)
	})
	for _, p := range providers {
		r.printf("%s (%s) %.0f m\n", p.UserName, p.ID, location.DistanceMeters(pos, p.CurrentLocation))
	}
	return nil
}

// runProvide делает провайдера доступным и шлёт позицию до Ctrl+C
func runProvide(ctx context.Context, r *Runner, _ []string) error {
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}
	if err := r.deps.Sharer.Start(ctx, userID); err != nil {
		return err
	}
	r.printf("sharing location as %s, press Ctrl+C to stop\n", userID)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.deps.Sharer.Stop(stopCtx)
}

func runListen(ctx context.Context, r *Runner, _ []string) error {
	userID, err := r.userID(ctx)
	if err != nil {
		return err
	}
	l, err := r.deps.Push(ctx, userID)
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("push is disabled (push.driver=none)")
	}

	err = push.Run(ctx, l, func(ev domain.Event) {
		r.printf("event %s for trip %s\n", ev.Type, ev.TripID)
		r.deps.Session.HandleEvent(ctx, ev)
		if st := r.deps.Session.Status(ev.TripID); st != "" {
			r.printf("  trip %s is %s\n", ev.TripID, st)
		}
	}, r.deps.Log)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
