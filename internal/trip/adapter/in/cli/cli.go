// Package cli: подкоманды клиента beside поверх use cases поездки.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"beside/internal/shared/auth"
	"beside/internal/shared/config"
	"beside/internal/shared/logger"
	"beside/internal/trip/application/ports/in"
	"beside/internal/trip/application/ports/out"
	"beside/internal/trip/application/usecase"
	"beside/internal/trip/domain"
)

// ErrUsage: неверные аргументы командной строки
var ErrUsage = errors.New("usage")

// Deps: всё, что нужно командам. Собирается в bootstrap.
type Deps struct {
	Session   in.TripSession
	Feedback  in.SubmitFeedbackUseCase
	History   *usecase.HistoryService
	Providers *usecase.ProviderLocator
	Sharer    *usecase.LocationSharer
	Accounts  out.AccountAPI
	Feed      out.LocationFeed
	Store     auth.Store
	Tracker   func() *usecase.RouteTracker
	Push      func(ctx context.Context, userID string) (out.PushListener, error)
	Polling   config.PollingConfig
	Log       *logger.Logger
}

type command struct {
	usage string
	run   func(ctx context.Context, r *Runner, args []string) error
}

var commands = map[string]command{
	"request":   {"request -pickup name,lat,lng -dropoff name,lat,lng -type T -communication -physical -identity -keep-distance M -safety S", runRequest},
	"status":    {"status -trip ID", runStatus},
	"track":     {"track -trip ID", runTrack},
	"accept":    {"accept -trip ID", transitionCommand(domain.StatusAccepted)},
	"start":     {"start -trip ID", transitionCommand(domain.StatusStarted)},
	"end":       {"end -trip ID", transitionCommand(domain.StatusEnded)},
	"cancel":    {"cancel -trip ID", runCancel},
	"feedback":  {"feedback -trip ID -rating 0..5 -text TEXT", runFeedback},
	"history":   {"history [-role user|provider]", runHistory},
	"providers": {"providers", runProviders},
	"provide":   {"provide", runProvide},
	"listen":    {"listen", runListen},
	"whoami":    {"whoami", runWhoami},
	"session":   {"session set -token T [-role R] | session show", runSession},
}

// Runner печатает результаты команд и уведомления хуков в один writer
type Runner struct {
	deps Deps

	mu  sync.Mutex
	out io.Writer

	ended chan string
}

func NewRunner(w io.Writer) *Runner {
	return &Runner{out: w, ended: make(chan string, 8)}
}

// Hooks: уведомления контроллера сессии для терминала
func (r *Runner) Hooks() usecase.Hooks {
	return usecase.Hooks{
		OnAccepted: func(t domain.TripRequest) {
			r.printf("trip %s accepted by provider %s\n", t.ID, t.ProviderIDOrEmpty())
		},
		OnEnded: func(t domain.TripRequest) {
			r.printf("trip %s ended, rate it with: beside feedback -trip %s -rating N\n", t.ID, t.ID)
			select {
			case r.ended <- t.ID:
			default:
			}
		},
	}
}

// Run выполняет одну подкоманду
func (r *Runner) Run(ctx context.Context, deps Deps, args []string) error {
	r.deps = deps
	if len(args) == 0 {
		r.usage()
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		r.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	err := cmd.run(ctx, r, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (r *Runner) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: beside <command> [flags]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s\n", commands[name].usage)
	}
	r.printf("%s", b.String())
}

func (r *Runner) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *Runner) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.out)
	return fs
}

// userID берётся из токена, а без него спрашивается у backend
func (r *Runner) userID(ctx context.Context) (string, error) {
	if s, err := auth.LoadSession(ctx, r.deps.Store); err == nil {
		if claims, err := auth.Inspect(s.Token); err == nil && claims.UserID != "" {
			return claims.UserID, nil
		}
	}
	u, err := r.deps.Accounts.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func requireTrip(fs *flag.FlagSet, tripID string) error {
	if tripID == "" {
		fs.Usage()
		return fmt.Errorf("%w: -trip is required", ErrUsage)
	}
	return nil
}

func (r *Runner) printTrip(t *domain.TripRequest) {
	r.printf("trip %s: %s\n", t.ID, t.Status)
	if t.Pickup.Name != "" || t.Dropoff.Name != "" {
		r.printf("  from %s to %s\n", t.Pickup.Name, t.Dropoff.Name)
	}
	if id := t.ProviderIDOrEmpty(); id != "" {
		r.printf("  provider %s\n", id)
	}
}

// printProvider: контакты провайдера для requester'а. Ошибка профиля не мешает статусу.
func (r *Runner) printProvider(ctx context.Context, t *domain.TripRequest) {
	id := t.ProviderIDOrEmpty()
	if id == "" || r.deps.Accounts == nil {
		return
	}
	u, err := r.deps.Accounts.GetUser(ctx, id)
	if err != nil {
		r.deps.Log.Warn(logger.Entry{
			Action:  "provider_profile_failed",
			Message: err.Error(),
			TripID:  t.ID,
			Error:   logger.Err(err),
		})
		return
	}
	r.printf("  %s, phone %s\n", u.UserName, u.MobileNo)
}
