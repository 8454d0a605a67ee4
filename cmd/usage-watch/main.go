// Command usage-watch follows one session's chat quota from the terminal.
package main

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/usageclient"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	server := pflag.StringP("server", "s", envOr("CHAT_QUOTA_URL", "http://localhost:5050"), "chat-quota-api base URL")
	token := pflag.StringP("token", "t", os.Getenv("CHAT_QUOTA_TOKEN"), "bearer token for the session")
	poll := pflag.Duration("poll", time.Minute, "background poll interval, 0 disables")
	logLevel := pflag.String("log-level", "warn", "log level")
	pflag.Parse()

	if err := logger.Configure(*logLevel, ""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "a token is required (--token or CHAT_QUOTA_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := usageclient.NewMonitor(
		usageclient.NewClient(*server, *token),
		usageclient.WithPollInterval(*poll),
		usageclient.OnUpdate(printUsage),
		usageclient.OnReset(func(u usageclient.Usage) {
			fmt.Printf("quota reset: %d messages available\n", u.MessagesLeft)
		}),
		usageclient.OnError(func(err error) {
			fmt.Fprintf(os.Stderr, "usage fetch failed: %v\n", err)
		}),
	)
	defer monitor.Close()

	if _, err := monitor.Start(ctx); err != nil {
		logger.Logger.WithError(err).Warn("Initial usage fetch failed")
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.LogEvent(logrus.DebugLevel, "Manual refetch", nil)
			_, _ = monitor.Refetch(ctx)
		}
	}
}

func printUsage(u usageclient.Usage) {
	reset := "no active window"
	if u.ResetTime != nil {
		reset = "resets " + u.ResetTime.Local().Format(time.RFC1123)
	}
	fmt.Printf("%d/%d messages left (%s)\n", u.MessagesLeft, u.MaxMessages, reset)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
