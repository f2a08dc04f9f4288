// Command logdock runs the real-time log collection and query gateway, or
// performs one of its one-shot lifecycle actions (index setup, retention
// sweep), per SPEC_FULL.md §4.H. The three subcommands are bound with
// spf13/cobra, the CLI framework the teacher's sibling CLI-style examples
// in the retrieval pack reach for in place of a bare flag.FlagSet.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/logdock/logdock/cmd/logdock/app"
	"github.com/logdock/logdock/cmd/logdock/build"
	"github.com/logdock/logdock/internal/logging"
)

func main() {
	v := viper.New()

	root := &cobra.Command{
		Use:   "logdock",
		Short: "real-time multi-project log collection and query gateway",
	}
	root.PersistentFlags().Bool("version", false, "print version information and exit")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the ingest/subscribe/query gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				printVersion()
				return nil
			}
			_ = v.BindPFlags(cmd.Flags())
			return runServe(v)
		},
	}
	app.RegisterFlags(serveCmd, v)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "create the search engine index if it does not already exist",
		// RunInit's failure is an unrecoverable engine error (SPEC_FULL.md
		// §4.H), which exits 2 rather than the generic 1 every other RunE
		// error funnels into via root.Execute below.
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = v.BindPFlags(cmd.Flags())
			cfg := app.ConfigFromViper(v)
			logging.Init(cfg.LogLevel, cfg.LogFormat)
			if err := app.RunInit(cfg); err != nil {
				level.Error(logging.Logger).Log("msg", "failed to initialize search engine index", "err", err)
				os.Exit(2)
			}
			return nil
		},
	}
	app.RegisterFlags(initCmd, v)

	var gcSince string
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "delete log records older than --since",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = v.BindPFlags(cmd.Flags())
			cfg := app.ConfigFromViper(v)
			logging.Init(cfg.LogLevel, cfg.LogFormat)
			d, err := time.ParseDuration(gcSince)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			cutoff := time.Now().Add(-d).UnixMilli()
			return app.RunGC(cfg, fmt.Sprintf("timestampMs < %d", cutoff))
		},
	}
	app.RegisterFlags(gcCmd, v)
	gcCmd.Flags().StringVar(&gcSince, "since", "720h", "delete records older than this duration")

	root.AddCommand(serveCmd, initCmd, gcCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(v *viper.Viper) error {
	cfg := app.ConfigFromViper(v)

	a, err := app.New(cfg)
	if err != nil {
		level.Error(logging.Logger).Log("msg", "failed to initialize logdock", "err", err)
		os.Exit(1)
	}

	level.Info(logging.Logger).Log("msg", "starting logdock", "version", build.Version)

	if err := a.Run(); err != nil {
		level.Error(logging.Logger).Log("msg", "error running logdock", "err", err)
		os.Exit(1)
	}
	return nil
}

func printVersion() {
	fmt.Printf("logdock, version %s (branch: %s, revision: %s)\n  build date: %s\n  go version: %s\n",
		build.Version, build.Branch, build.Revision, build.Date, build.GoVersion())
}
