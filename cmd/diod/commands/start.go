package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/diod/internal/config"
	"github.com/marmos91/diod/internal/logger"
	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend/ctl"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/server"
)

func init() {
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the 9P2000.L server",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger.Info("diod starting", "version", Version, "commit", Commit)

	store, err := identity.NewStore(identity.Options{
		CacheSize:  cfg.UserCacheSize,
		NoUserDB:   cfg.NoUserDB,
		SquashUser: cfg.SquashUser,
	})
	if err != nil {
		return fmt.Errorf("initializing identity store: %w", err)
	}

	if !identity.GroupSwitchOK() {
		logger.Warn("host kernel does not expose per-thread setgroups; supplementary-group enforcement disabled")
	}

	var authProvider auth.Provider
	if cfg.NoAuth {
		authProvider = auth.NoneProvider{}
	} else {
		authProvider = auth.NoneProvider{}
		logger.Warn("no munge (or equivalent) provider configured; falling back to no-auth semantics")
	}

	entries, err := buildEntries(cfg)
	if err != nil {
		return err
	}
	exports := export.NewList(entries, cfg.ExportAll)

	srv := server.New(server.Config{
		Listen:     cfg.Listen,
		RfdNo:      cfg.RfdNo,
		WfdNo:      cfg.WfdNo,
		MaxMsize:   uint32(cfg.Msize),
		NumWorkers: cfg.NumWorkers,
		Exports:    exports,
		Identity:   store,
		Auth:       authProvider,
		CtlCfg: ctl.Config{
			Version: Version,
			Exports: func() []string {
				s := make([]string, 0, len(cfg.Exports))
				s = append(s, cfg.Exports...)
				return s
			},
			CurrentLevel: func() string { return cfg.LogLevel },
			SetLogLevel: func(level string) error {
				logger.SetLevel(level)
				return nil
			},
		},
		NoAuth:    cfg.NoAuth,
		AllSquash: cfg.AllSquash,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received: flushing identity cache")
				store.Purge()
			default:
				logger.Info("signal received, draining connections", "signal", sig)
				cancel()
				return
			}
		}
	}()
	defer signal.Stop(sigCh)

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info("diod stopped")
	return nil
}

// buildEntries turns cfg.Exports plus the shared --export-opts CSV into
// export.Entry values (spec.md §6), then appends any entries named in
// --export-file with their own per-path options (SPEC_FULL.md §3.2).
func buildEntries(cfg *config.Config) ([]export.Entry, error) {
	defaults := export.ParseOpts(cfg.ExportOpts)
	entries := make([]export.Entry, 0, len(cfg.Exports))
	for _, path := range cfg.Exports {
		e := defaults
		e.Path = path
		entries = append(entries, e)
	}

	if cfg.ExportFile != "" {
		fileEntries, err := config.LoadExportFile(cfg.ExportFile)
		if err != nil {
			return nil, fmt.Errorf("loading export file: %w", err)
		}
		entries = append(entries, fileEntries...)
	}

	return entries, nil
}
