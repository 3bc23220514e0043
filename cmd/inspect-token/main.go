package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"beside/internal/shared/auth"
	"beside/internal/shared/config"
	"beside/internal/shared/logger"
	"beside/internal/trip/application/usecase"
	"beside/internal/trip/bootstrap"
)

// inspect-token печатает claims токена из -token или из сохранённой сессии.
// Подпись не проверяется, это делает только backend.
func main() {
	token := flag.String("token", "", "token to inspect (default: stored session)")
	flag.Parse()

	if *token == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log := logger.NewLogger("inspect-token")
		app, err := bootstrap.New(context.Background(), cfg, log, usecase.Hooks{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		s, err := auth.LoadSession(context.Background(), app.Store)
		app.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Usage: inspect-token -token=<TOKEN> or save one with: beside session set -token <TOKEN>")
			os.Exit(1)
		}
		*token = s.Token
	}

	claims, err := auth.Inspect(*token)
	if err != nil {
		fmt.Printf("Token cannot be parsed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Claims:\n")
	fmt.Printf("  User ID: %s\n", claims.UserID)
	fmt.Printf("  Role:    %s\n", claims.Role)
	fmt.Printf("  Issuer:  %s\n", claims.Issuer)
	if claims.IssuedAt != nil {
		fmt.Printf("  Issued At:  %s\n", claims.IssuedAt.Time)
	}
	if claims.ExpiresAt != nil {
		fmt.Printf("  Expires At: %s\n", claims.ExpiresAt.Time)
	}
	if claims.Expired(time.Now()) {
		fmt.Printf("\nToken is EXPIRED, log in again.\n")
		os.Exit(1)
	}
	fmt.Printf("\nToken is not expired.\n")
}
