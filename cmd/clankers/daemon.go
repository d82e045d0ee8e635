package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dxta-dev/clankers/internal/logging"
	"github.com/dxta-dev/clankers/internal/paths"
	"github.com/dxta-dev/clankers/internal/rpc"
	"github.com/dxta-dev/clankers/internal/storage"
	"github.com/dxta-dev/clankers/internal/telemetry"
)

func daemonCmd() *cobra.Command {
	var (
		socketPath string
		dataRoot   string
		dbPath     string
	)

	v := viper.New()
	v.SetEnvPrefix("CLANKERS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "info")

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background daemon",
		Long: `Run the clankers daemon that listens for plugin connections and stores
session data in the local database.

The daemon listens on a Unix socket (macOS/Linux) or loopback TCP
(Windows) and accepts JSON-RPC requests from editor plugins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(rpc.NewNoiseFilter(os.Stderr))

			exportPathFlags(dataRoot, dbPath, socketPath)
			socketPath = paths.SocketPath()
			logLevel := v.GetString("log-level")

			ctx := cmd.Context()
			if err := telemetry.Init(ctx, "clankers", version); err != nil {
				log.Printf("telemetry init failed: %v", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				telemetry.Shutdown(shutdownCtx)
			}()

			// A broken log directory must not keep the daemon down.
			logger, err := logging.New(paths.LogDir(), logging.ParseLevel(logLevel))
			if err != nil {
				log.Printf("failed to initialize logger: %v", err)
				log.Printf("falling back to stderr logging only")
			}
			if logger != nil {
				defer logger.Close()
				logger.Infof("daemon", "daemon starting with log level %s", logLevel)

				stopCleanup := logging.StartCleanupJob(logger.Dir(), logger)
				defer stopCleanup()
			}

			resolvedDBPath := paths.DBPath()
			created, err := storage.EnsureDB(resolvedDBPath)
			if err != nil {
				return fmt.Errorf("ensuring database: %w", err)
			}
			if created {
				logInfo(logger, "created database at %s", resolvedDBPath)
			}

			store, err := storage.Open(resolvedDBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			server := rpc.NewServer(rpc.NewHandler(store, logger, version), socketPath)
			if err := server.Start(); err != nil {
				return err
			}
			logInfo(logger, "listening on %s", server.Addr())

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-sigCtx.Done()

			logInfo(logger, "shutting down...")
			return server.Stop()
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "socket path (default: data dir + dxta-clankers.sock)")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "data root directory (overrides CLANKERS_DATA_PATH)")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "database file path (overrides CLANKERS_DB_PATH)")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error (env: CLANKERS_LOG_LEVEL)")
	v.BindPFlag("log-level", cmd.Flags().Lookup("log-level"))

	return cmd
}

// exportPathFlags publishes path flags to the environment so every
// component, including anything the daemon spawns, resolves the same
// locations.
func exportPathFlags(dataRoot, dbPath, socketPath string) {
	if dataRoot != "" {
		os.Setenv("CLANKERS_DATA_PATH", dataRoot)
	}
	if dbPath != "" {
		os.Setenv("CLANKERS_DB_PATH", dbPath)
	}
	if socketPath != "" {
		os.Setenv("CLANKERS_SOCKET_PATH", socketPath)
	}
}

// logInfo writes through the structured logger when available, stderr
// otherwise.
func logInfo(logger *logging.Logger, format string, args ...any) {
	if logger != nil {
		logger.Infof("daemon", format, args...)
	} else {
		log.Printf(format, args...)
	}
}
