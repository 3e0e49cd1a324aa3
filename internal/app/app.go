package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/cli"
	"github.com/rbright/storybook/internal/config"
	"github.com/rbright/storybook/internal/display"
	"github.com/rbright/storybook/internal/doctor"
	"github.com/rbright/storybook/internal/generate"
	"github.com/rbright/storybook/internal/health"
	"github.com/rbright/storybook/internal/indicator"
	"github.com/rbright/storybook/internal/ipc"
	"github.com/rbright/storybook/internal/logging"
	"github.com/rbright/storybook/internal/session"
	"github.com/rbright/storybook/internal/speech"
	"github.com/rbright/storybook/internal/version"
)

const binaryName = "storybook"

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, line := range cfgLoaded.WarningLines() {
		fmt.Fprintf(r.Stderr, "warning: %s\n", line)
		logger.Warn("config warning", "message", line)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop, cli.CommandNew, cli.CommandNext, cli.CommandPrev:
		return r.forwardOrFail(ctx, string(parsed.Command))
	case cli.CommandRun:
		cfg := cfgLoaded.Config
		if parsed.Display != "" {
			cfg.Display.Backend = parsed.Display
		}
		return r.commandRun(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := speech.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath("")
	if err != nil {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "stopped"
	}
	if resp.Message != "" {
		fmt.Fprintf(r.Stdout, "%s (%s)\n", resp.State, resp.Message)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath("")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no running storybook kiosk\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRun owns the control socket for the lifetime of one kiosk session.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if _, err := config.Validate(cfg); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath("")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	lockOpts := ipc.DefaultLockOptions()
	lockOpts.OnStale = func(path string) {
		logger.Info("removed stale control socket", "path", path)
	}
	lock, err := ipc.Acquire(ctx, socketPath, lockOpts)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a storybook kiosk is already running; use `storybook stop` first")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = lock.Close() }()

	surface, err := display.New(cfg.Display, r.stdin(), r.Stdout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("open display failed", "backend", cfg.Display.Backend, "error", err.Error())
		return 1
	}

	deps, err := r.sessionDeps(cfg, logger, surface)
	if err != nil {
		_ = surface.Close()
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var healthServer *health.Server
	var healthListener net.Listener
	if addr := strings.TrimSpace(cfg.Health.Listen); addr != "" {
		healthListener, err = net.Listen("tcp", addr)
		if err != nil {
			fmt.Fprintf(r.Stderr, "warning: health endpoint disabled: %v\n", err)
			logger.Warn("health listen failed", "addr", addr, "error", err.Error())
		} else {
			healthServer = health.NewServer(logger)
			deps.Observer = healthServer
		}
	}

	controller, err := session.NewController(deps)
	if err != nil {
		_ = surface.Close()
		if healthListener != nil {
			_ = healthListener.Close()
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- ipc.Serve(serverCtx, lock, controller)
	}()

	healthErrCh := make(chan error, 1)
	if healthServer != nil {
		go func() {
			healthErrCh <- healthServer.Serve(serverCtx, healthListener)
		}()
	} else {
		healthErrCh <- nil
	}

	result := controller.Run(ctx)
	serverCancel()

	exitCode := 0
	if ipcErr := <-ipcErrCh; ipcErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", ipcErr)
		exitCode = 1
	}
	if healthErr := <-healthErrCh; healthErr != nil {
		fmt.Fprintf(r.Stderr, "error: health server failed: %v\n", healthErr)
		exitCode = 1
	}

	logSessionResult(logger, result)
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return exitCode
}

func (r Runner) sessionDeps(cfg config.Config, logger *slog.Logger, surface display.Surface) (session.Deps, error) {
	backend, err := generate.NewBackend(cfg)
	if err != nil {
		return session.Deps{}, err
	}

	return session.Deps{
		Logger:    logger,
		Surface:   surface,
		Capturer:  capture.NewCoordinator(speech.Opener(cfg, logger), cfg.Speech.VoiceTimeout, logger),
		Generator: generate.New(backend, cfg, logger),
		Status:    indicator.New(cfg.Indicator, logger),
		Backlight: indicator.NewBacklight(cfg.Backlight, indicator.DefaultBacklightRoot, logger),
		Timing:    session.TimingFromConfig(cfg),
	}, nil
}

func (r Runner) stdin() io.Reader {
	if r.Stdin == nil {
		return os.Stdin
	}
	return r.Stdin
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"stories", result.Stories,
		"drained", result.Drained,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	if !result.Drained {
		logger.Warn("session stopped before work drained", fields...)
		return
	}
	logger.Info("session complete", fields...)
}
