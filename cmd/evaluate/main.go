// Command evaluate runs the upload pipeline against a local archive and
// prints the JSON the gateway would answer with.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"insights-gateway/internal/config"
	"insights-gateway/internal/engine"
	_ "insights-gateway/internal/engine/rules/core"
	"insights-gateway/internal/intake"
	"insights-gateway/internal/logger"
	"insights-gateway/internal/metrics"
	"insights-gateway/internal/model"
	"insights-gateway/internal/stats"
	"insights-gateway/internal/worker"
	"insights-gateway/internal/workspace"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	systemID string
	account  string
	rules    string
	persist  bool
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "evaluate ARCHIVE",
		Short:         "Evaluate a diagnostic archive the way the upload endpoint does",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), cmd, opts, args[0])
			if err != nil {
				msg := err.Error()
				if e := model.AsError(err); e.Kind != model.KindUnknown {
					msg = e.Msg
				}
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.systemID, "system-id", "", "system id, as in /upload/{systemID}")
	f.StringVar(&opts.account, "account", "", "account number, as in X-Account")
	f.StringVar(&opts.rules, "rules", "", "comma-separated rule packages (default $RULE_PACKAGES or core)")
	f.BoolVar(&opts.persist, "persist", false, "write the archive to the configured buckets")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline stages to stderr")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Parse(func(key string) string {
		if key == "RULE_PACKAGES" {
			if opts.rules != "" {
				return opts.rules
			}
			if v := os.Getenv(key); v != "" {
				return v
			}
			return "core"
		}
		return os.Getenv(key)
	})
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := logger.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}, level, cfg)
	ctx = log.WithContext(ctx)

	rules, err := engine.LoadPackages(cfg.RulePackages)
	if err != nil {
		log.Warn().Err(err).Strs("available", engine.ListPackages()).Msg("rule packages skipped")
	}

	var store worker.ObjectStore
	if opts.persist {
		if !cfg.PersistenceEnabled() {
			return fmt.Errorf("--persist needs S3_BUCKET, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
		}
		if store, err = worker.NewS3Uploader(ctx, cfg, metrics.New()); err != nil {
			return err
		}
	}

	proc := worker.NewProcessor(
		workspace.NewManager(cfg.WorkDir),
		worker.NewDispatcher(cfg, rules),
		worker.NewPersister(cfg, store),
		stats.New(time.Now(), nil),
	)
	in := intake.New(config.MaxUploadSize)
	req := model.UploadRequest{
		SystemID:  opts.systemID,
		AccountID: opts.account,
		UserAgent: "insights-gateway-cli",
	}

	resp, err := proc.Process(ctx, req, func(ws *workspace.Workspace) (*intake.Upload, error) {
		return in.AcceptFile(path, ws)
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), strings.TrimRight(string(resp.Body), "\r\n")+"\n")
	return err
}
