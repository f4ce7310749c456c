// Package cli implements sessionctl, the operator command line for the
// session engine. Commands call the same Service the HTTP API uses and
// render results as terminal tables.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sessionlake/internal/app"
	"github.com/JonMunkholm/sessionlake/internal/config"
	"github.com/JonMunkholm/sessionlake/internal/core"
	"github.com/JonMunkholm/sessionlake/internal/logging"
)

// Builder constructs the Service a command runs against.
type Builder func(ctx context.Context) (*core.Service, error)

type state struct {
	build    Builder
	svc      *core.Service
	asJSON   bool
	logLevel string
}

// service builds the Service on first use so that help and flag errors
// never touch the data directory.
func (r *state) service(ctx context.Context) (*core.Service, error) {
	if r.svc != nil {
		return r.svc, nil
	}
	svc, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	r.svc = svc
	return svc, nil
}

// emit prints v as indented JSON when --json is set; otherwise it calls render.
func (r *state) emit(w io.Writer, v any, render func() string) error {
	if r.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprint(w, render())
	return err
}

// NewRootCmd returns the sessionctl command tree. A nil build loads the
// environment configuration and wires the full application.
func NewRootCmd(build Builder) *cobra.Command {
	rt := &state{build: build}
	if rt.build == nil {
		rt.build = rt.fromEnv
	}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Operate analytical sessions from the command line",
		Long:          `sessionctl binds sources into a session, runs SQL and analyses against it, and manages session files without going through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&rt.asJSON, "json", false, "Print results as JSON")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newInitCmd(rt),
		newQueryCmd(rt),
		newAnalyzeCmd(rt),
		newViewsCmd(rt),
		newFilesCmd(rt),
		newResetCmd(rt),
		newScriptCmd(rt),
	)
	return root
}

func (r *state) fromEnv(ctx context.Context) (*core.Service, error) {
	// A missing .env is fine; the process environment wins over the file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr so --json output stays parseable.
	slog.SetDefault(logging.New(os.Stderr, r.logLevel, cfg.Logging.Format))

	a, err := app.New(ctx, cfg, app.Options{Logger: slog.Default()})
	if err != nil {
		return nil, err
	}
	return a.Service, nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(nil)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprint(stderr, describe(err))
		return 1
	}
	return 0
}
