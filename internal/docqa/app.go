package docqa

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/asakusa/enterprise-rag/pkg/infra/app"
)

const (
	appName        = "docqa"
	appDescription = `Enterprise document Q&A

Stages a local document tree to object storage, provisions a knowledge index
and an answering agent through the knowledge gateway, and answers questions
with source citations.

Commands:
  - provision    stage documents and build the index and agent
  - query        ask one question against the provisioned agent
  - batch        run a file of questions through one session
  - interactive  ask questions one at a time until 'quit'
  - teardown     delete the agent and the index
  - serve        run the HTTP API`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	var (
		purge     bool
		batchFile string
	)

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Enterprise document Q&A"),
		app.WithDescription(appDescription),
		app.WithEnvPrefix("DOCQA"),
		app.WithOptions(opts),
		app.WithInitFunc(func() error {
			if err := opts.Log.Init(appName, app.GetVersion()); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		}),
		app.WithCommands(
			&app.Command{
				Use:   "provision [documents-dir]",
				Short: "Stage documents and provision the knowledge index and agent",
				Args:  cobra.MaximumNArgs(1),
				Run: func(ctx context.Context, args []string) error {
					root := opts.Staging.Documents
					if len(args) == 1 {
						root = args[0]
					}
					return withServer(ctx, opts, func(s *Server) error {
						return runProvision(ctx, s.Core(), root, os.Stdout)
					})
				},
			},
			&app.Command{
				Use:   "query <question>",
				Short: "Ask one question against the provisioned agent",
				Args:  cobra.MinimumNArgs(1),
				Run: func(ctx context.Context, args []string) error {
					return withServer(ctx, opts, func(s *Server) error {
						return runQuery(ctx, s.Core(), strings.Join(args, " "), os.Stdout)
					})
				},
			},
			&app.Command{
				Use:   "batch",
				Short: "Run a file of questions through one session",
				Flags: func(fs *pflag.FlagSet) {
					fs.StringVarP(&batchFile, "file", "f", "", "Questions file, one per line ('#' starts a comment)")
				},
				Run: func(ctx context.Context, _ []string) error {
					questions, err := readQuestions(batchFile)
					if err != nil {
						return err
					}
					return withServer(ctx, opts, func(s *Server) error {
						return runBatch(ctx, s.Core(), questions, os.Stdout)
					})
				},
			},
			&app.Command{
				Use:   "interactive",
				Short: "Ask questions one at a time until 'quit'",
				Run: func(ctx context.Context, _ []string) error {
					return withServer(ctx, opts, func(s *Server) error {
						return runInteractive(ctx, s.Core(), os.Stdin, os.Stdout)
					})
				},
			},
			&app.Command{
				Use:   "teardown",
				Short: "Delete the agent and the knowledge index",
				Flags: func(fs *pflag.FlagSet) {
					fs.BoolVar(&purge, "purge", false, "Also remove staged documents under the staging prefix")
				},
				Run: func(ctx context.Context, _ []string) error {
					return withServer(ctx, opts, func(s *Server) error {
						return runTeardown(ctx, s.Core(), purge, os.Stdout)
					})
				},
			},
			&app.Command{
				Use:   "serve",
				Short: "Run the HTTP API",
				Run: func(ctx context.Context, _ []string) error {
					printBanner(opts)
					return withServer(ctx, opts, func(s *Server) error {
						return s.Serve(ctx)
					})
				},
			},
		),
	)
}

func withServer(ctx context.Context, opts *Options, fn func(s *Server) error) error {
	s, err := NewServer(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printBanner(opts *Options) {
	fmt.Printf("Starting %s %s on %s...\n", appName, app.GetVersion(), opts.Server.Addr)
	logger.Infow("Starting docqa service",
		"addr", opts.Server.Addr,
		"mode", opts.Server.Mode,
		"index", opts.KB.IndexName,
		"agent", opts.KB.AgentName,
	)
}
