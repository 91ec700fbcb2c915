// Command kessa runs the kessa MCP server and its daemon supervisor
// (§6's exit-code contract: start/stop/status/restart return 0 on
// success, status returns 0 whether running or not, hard failures
// return 1).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kessa-dev/kessa"
	"github.com/kessa-dev/kessa/internal/config"
	"github.com/kessa-dev/kessa/internal/gitanalyzer"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	level := parseLogLevel(os.Getenv("KESSA_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if len(args) == 0 {
		return runStart(logger, args)
	}

	switch args[0] {
	case "start":
		return runStart(logger, args[1:])
	case "stop":
		return runStop(logger, args[1:])
	case "status":
		return runStatus(logger, args[1:])
	case "restart":
		if code := runStop(logger, args[1:]); code != 0 {
			return code
		}
		return runStart(logger, args[1:])
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stderr, "usage: kessa [start|stop|status|restart] [flags]")
		return 0
	default:
		// No recognized subcommand: treat the whole argument list as
		// flags for the default "start" behavior, for `kessa -repo ...`.
		return runStart(logger, args)
	}
}

func daemonFlags(fs *flag.FlagSet) (repo *string, indexInterval *time.Duration) {
	repo = fs.String("repo", ".", "git repository GitAnalyzer indexes")
	indexInterval = fs.Duration("index-interval", 15*time.Minute, "how often to run incremental commit indexing")
	return repo, indexInterval
}

// runStart writes the PID file, wires the app, and serves the MCP
// tool surface over stdio until a signal arrives or the transport
// returns. The PID file is unlinked on clean shutdown; a stale PID
// file from a crashed prior run is detected and overwritten.
func runStart(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	repo, indexInterval := daemonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		return 1
	}

	if alive, pid, err := probePIDFile(cfg.PIDFilePath); err != nil {
		logger.Error("pid file", "error", err)
		return 1
	} else if alive {
		logger.Error("kessa already running", "pid", pid, "pid_file", cfg.PIDFilePath)
		return 1
	}

	if err := writePIDFile(cfg.PIDFilePath); err != nil {
		logger.Error("pid file", "error", err)
		return 1
	}
	defer removePIDFile(cfg.PIDFilePath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := kessa.New(
		kessa.WithVersion(version),
		kessa.WithLogger(logger),
		kessa.WithRepoPath(*repo),
	)
	if err != nil {
		logger.Error("init", "error", err)
		return 1
	}

	if analyzer := app.GitAnalyzer(); analyzer != nil {
		go runGitIndexLoop(ctx, logger, analyzer, *indexInterval)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// runGitIndexLoop runs incremental commit indexing on a fixed
// interval. Indexing failures are logged and retried next tick — a
// slow or unreachable embedder should not crash the server.
func runGitIndexLoop(ctx context.Context, logger *slog.Logger, analyzer *gitanalyzer.Analyzer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := analyzer.IndexCommits(ctx, nil, 500, false)
			if err != nil {
				logger.Warn("git index: incremental pass failed", "error", err)
				continue
			}
			if stats.CommitsIndexed > 0 {
				logger.Info("git index: commits indexed", "count", stats.CommitsIndexed)
			}
		}
	}
}

func runStop(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		return 1
	}

	pid, err := readPIDFile(cfg.PIDFilePath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("kessa is not running", "pid_file", cfg.PIDFilePath)
		return 0
	}
	if err != nil {
		logger.Error("pid file", "error", err)
		return 1
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		logger.Error("find process", "pid", pid, "error", err)
		return 1
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			logger.Info("kessa already stopped (stale pid file)", "pid", pid)
			removePIDFile(cfg.PIDFilePath)
			return 0
		}
		logger.Error("signal process", "pid", pid, "error", err)
		return 1
	}

	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			logger.Info("kessa stopped", "pid", pid)
			return 0
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Warn("kessa did not exit within timeout", "pid", pid)
	return 0
}

// runStatus always returns 0, per §6: "status returns 0 whether
// running or not."
func runStatus(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		return 0
	}

	alive, pid, err := probePIDFile(cfg.PIDFilePath)
	if err != nil {
		logger.Info("kessa status unknown", "error", err)
		return 0
	}
	if alive {
		logger.Info("kessa is running", "pid", pid)
	} else {
		logger.Info("kessa is not running")
	}
	return 0
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
