package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"carepilot/pkg/actionclient"
)

type rootOptions struct {
	baseURL    string
	token      string
	timezone   string
	timeout    time.Duration
	maxRetries int
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "assistctl",
		Short:         "Execute carepilot actions from the command line",
		Long:          "Sends structured actions to a carepilot server. Actions can be given directly (exec) or extracted from an assistant reply (reply).",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.baseURL, "url", envOr("CAREPILOT_URL", "http://localhost:8080"), "carepilot server URL")
	f.StringVar(&opts.token, "token", os.Getenv("CAREPILOT_TOKEN"), "bearer token (default $CAREPILOT_TOKEN)")
	f.StringVar(&opts.timezone, "timezone", envOr("TZ", ""), "IANA timezone for relative dates")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-attempt request timeout")
	f.IntVar(&opts.maxRetries, "retries", 3, "retries for transient failures")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log retries to stderr")

	cmd.AddCommand(newExecCmd(opts), newReplyCmd(opts), newTokenCmd())
	return cmd
}

func (o *rootOptions) client() (*actionclient.Client, error) {
	if o.token == "" {
		return nil, errors.New("a bearer token is required: pass --token or set CAREPILOT_TOKEN")
	}
	level := slog.LevelError
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return actionclient.New(o.baseURL, o.token,
		actionclient.WithTimeout(o.timeout),
		actionclient.WithRetry(o.maxRetries, time.Second),
		actionclient.WithLogger(logger),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
