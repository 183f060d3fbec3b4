// opsreport lists orders an operator has to look at: buys that were paid but
// never delivered, sell payouts that failed after the seller sent tokens, and
// orders stuck in pending.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	internalhttp "DOTRamp/internal/http"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var (
		baseURL string
		secret  string
		stale   time.Duration
		limit   int
	)
	flags := pflag.NewFlagSet("opsreport", pflag.ContinueOnError)
	flags.StringVar(&baseURL, "url", "http://localhost:8080", "api base URL")
	flags.StringVar(&secret, "secret", os.Getenv("ADMIN_JWT_SECRET"), "admin JWT secret (default $ADMIN_JWT_SECRET)")
	flags.DurationVar(&stale, "stale", 10*time.Minute, "report pending orders older than this")
	flags.IntVar(&limit, "limit", 500, "number of most recent orders to inspect")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if secret == "" {
		return fmt.Errorf("--secret or ADMIN_JWT_SECRET is required")
	}

	token, err := internalhttp.NewAdminToken(secret, "opsreport", time.Minute)
	if err != nil {
		return fmt.Errorf("sign admin token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 20 * time.Second}
	orders, err := fetchHistory(ctx, client, baseURL, token, limit)
	if err != nil {
		return err
	}

	items := attention(orders, time.Now(), stale)
	return writeReport(out, items, len(orders))
}
