package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/tweetsweep/internal/api"
	"github.com/kalambet/tweetsweep/internal/config"
	"github.com/kalambet/tweetsweep/internal/jobs"
	"github.com/kalambet/tweetsweep/internal/session"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tweetsweep server and processor (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running tweetsweep server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "tweetsweep.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func serverURL(cfg config.Config) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
}

func runServer() error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireTwitter(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Ensure the admin token exists in the platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("admin bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("tweetsweep is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("tweetsweep is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	repo := jobs.NewRepository(store)
	sessions := session.NewStore(store, session.DefaultTTL)
	client := newTwitterClient(cfg.Twitter)

	worker, err := newWorker(cfg, repo, client)
	if err != nil {
		return err
	}
	if err := worker.AddSweep("sessions", sessionPurgeSchedule, sessions.Purge); err != nil {
		return err
	}
	estimator := jobs.Estimator{PerRun: cfg.Processor.DeletePerRun, TickInterval: worker.Interval()}

	handler := api.NewHandler(api.Deps{
		Jobs:           repo,
		Sessions:       sessions,
		Twitter:        client,
		Worker:         worker,
		Estimator:      estimator,
		Token:          apiToken,
		PageInterval:   cfg.Processor.PageInterval,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		SecureCookies:  cfg.Server.SecureCookies,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "tweetsweep listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if cfg.Server.MCPStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Jobs:      repo,
			Estimator: estimator,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	// Graceful shutdown once a signal arrives or any part fails.
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("tweetsweep is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop tweetsweep (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to tweetsweep (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(serverURL(cfg) + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running at %s", serverURL(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", storageLabel(cfg.Storage))
	printStatus("Schedule", "%s", cfg.Processor.Schedule)
	printStatus("Rate limit", "%d per %s, %d per %s",
		cfg.RateLimit.ShortWindowMax, cfg.RateLimit.ShortWindow,
		cfg.RateLimit.LongWindowMax, cfg.RateLimit.LongWindow)

	if !running {
		return nil
	}
	c, err := newAPIClient()
	if err != nil {
		return nil
	}
	list, err := c.listJobs(ctx, "")
	if err != nil {
		printStatus("Queue", "unavailable: %v", err)
		return nil
	}
	printQueueSummary(list)
	return nil
}

func storageLabel(cfg config.StorageConfig) string {
	if cfg.Backend == config.BackendNATS {
		return fmt.Sprintf("nats %s (bucket %s)", cfg.NATSURL, cfg.NATSBucket)
	}
	return fmt.Sprintf("sqlite in %s", cfg.DataDir)
}
