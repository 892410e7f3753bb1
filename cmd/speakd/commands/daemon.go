package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/cmd/speakd/internal/build"
	"github.com/haivivi/speakd/cmd/speakd/internal/config"
	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/cli"
	"github.com/haivivi/speakd/pkg/daemon"
	"github.com/haivivi/speakd/pkg/embed"
	"github.com/haivivi/speakd/pkg/kv"
	"github.com/haivivi/speakd/pkg/player"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the speakd daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		return runDaemon(cfg)
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background and wait for readiness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		client := newClient(cfg)
		if client.Running(ctx) {
			if err := client.WaitReady(ctx); err != nil {
				return err
			}
			cli.PrintInfo("daemon already running")
			return nil
		}

		exe, err := os.Executable()
		if err != nil {
			return err
		}
		spawn := []string{exe, "daemon", "run"}
		if socketFlag != "" {
			spawn = append(spawn, "--socket", socketFlag)
		}
		if err := client.EnsureRunning(ctx, spawn); err != nil {
			return err
		}
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		cli.PrintSuccess("daemon ready (pid %d)", st.PID)
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := newClient(cfg).Stop(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("daemon stopped")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		st, err := newClient(cfg).Status(cmd.Context())
		if err != nil {
			if jsonOutput {
				return cli.Output(map[string]string{"state": "stopped"},
					cli.OutputOptions{Format: cli.FormatJSON, Indent: "  "})
			}
			fmt.Println("state:    stopped")
			return nil
		}
		if jsonOutput {
			return cli.Output(st, cli.OutputOptions{Format: cli.FormatJSON, Indent: "  "})
		}
		printStatus(st)
		return nil
	},
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon in-process (reloads models and cache)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		client := newClient(cfg)
		if err := client.Restart(ctx); err != nil {
			return err
		}
		if err := client.WaitReady(ctx); err != nil {
			return err
		}
		cli.PrintSuccess("daemon restarted")
		return nil
	},
}

func init() {
	daemonCmd.AddCommand(daemonRunCmd, daemonStartCmd, daemonStopCmd, daemonStatusCmd, daemonRestartCmd)
	rootCmd.AddCommand(daemonCmd)
}

// runDaemon builds and runs the foreground daemon until a signal or a
// shutdown request.
func runDaemon(cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return err
	}

	key := apiKeyFlag
	if key == "" {
		key = cfg.Daemon.APIKey
	}
	d, err := daemon.New(daemon.Config{
		SocketPath: socketPath(cfg),
		HTTPAddr:   cfg.HTTPAddr(),
		APIKey:     key,
		Router:     router,
		NewEmbedder: func(ctx context.Context) (embed.Embedder, error) {
			return buildEmbedder(ctx, cfg)
		},
		NewKV: func() (kv.Store, error) {
			return buildKV(cfg)
		},
		NewArtifacts: func() (artifact.Store, error) {
			return buildArtifacts(context.Background(), cfg)
		},
		NewSink: func() (player.Sink, error) {
			return buildSink(cfg)
		},
		Provider:      cfg.Provider,
		Voice:         cfg.Voice,
		Threshold:     cfg.Threshold,
		CacheDisabled: cfg.Cache.Disabled,
		MaxTextLen:    cfg.Cache.MaxTextLen,
		QueueKeep:     cfg.Daemon.QueueKeep,
		Version:       build.Version,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("speakd starting", "socket", socketPath(cfg), "provider", cfg.Provider)
	return d.Run(ctx)
}

// newLogger builds the process logger from the log config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// printStatus renders the human status view.
func printStatus(st *daemon.StatusResponse) {
	fmt.Printf("state:    %s\n", st.State)
	fmt.Printf("pid:      %d\n", st.PID)
	if st.Version != "" {
		fmt.Printf("version:  %s\n", st.Version)
	}
	fmt.Printf("provider: %s\n", st.Provider)
	if st.Uptime != nil {
		fmt.Printf("uptime:   %s\n", st.Uptime)
	}
	if st.Queue != nil {
		if st.Queue.Playing != nil {
			fmt.Printf("queue:    playing job %d, %d waiting\n", *st.Queue.Playing, st.Queue.Waiting)
		} else {
			fmt.Printf("queue:    idle, %d waiting\n", st.Queue.Waiting)
		}
	}
	if st.Cache != nil {
		fmt.Printf("cache:    %d entries (dim %d)\n", st.Cache.Entries, st.Cache.Dimension)
		if st.Cache.OrphanArtifacts > 0 {
			fmt.Printf("          %d orphan artifacts\n", st.Cache.OrphanArtifacts)
		}
	} else {
		fmt.Printf("cache:    disabled\n")
	}
}
