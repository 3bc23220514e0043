package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"beside/internal/shared/config"
	"beside/internal/shared/logger"
	"beside/internal/trip/adapter/in/cli"
	"beside/internal/trip/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to beside.yaml (default: $CONFIG_DIR/beside.yaml)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: beside [-config FILE] <command> [flags]")
		_ = cli.NewRunner(os.Stderr).Run(context.Background(), cli.Deps{}, nil)
	}
	flag.Parse()

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewLoggerWithOptions("beside", cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() { <-quit; cancel() }()

	runner := cli.NewRunner(os.Stdout)
	app, err := bootstrap.New(ctx, cfg, log, runner.Hooks())
	if err != nil {
		log.Error(logger.Entry{Action: "bootstrap_failed", Message: err.Error(), Error: logger.Err(err)})
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = runner.Run(ctx, cli.Deps{
		Session:   app.Session,
		Feedback:  app.Feedback,
		History:   app.History,
		Providers: app.Providers,
		Sharer:    app.Sharer,
		Accounts:  app.API,
		Feed:      app.Feed,
		Store:     app.Store,
		Tracker:   app.NewRouteTracker,
		Push:      app.PushListener,
		Polling:   cfg.Polling,
		Log:       log,
	}, flag.Args())
	app.Close()

	if err != nil && !errors.Is(err, cli.ErrUsage) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err != nil {
		os.Exit(2)
	}
}
