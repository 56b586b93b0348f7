package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/urfave/cli"

	"github.com/tartampluch/go-wakeup/internal/config"
)

var (
	settingsPath string
	debugMode    bool
	dryRun       bool
)

// main is the application entry point.
// It delegates execution to runMain to ensure that deferred function calls
// (like closing log files) are executed before the process terminates.
func main() {
	os.Exit(runMain(os.Args))
}

// runMain manages the application lifecycle, argument parsing, and exit codes.
// Returns config.ExitCodeSuccess on success, config.ExitCodeError on failure.
func runMain(args []string) int {
	// Create a root context that cancels on SIGINT (Ctrl+C) or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var logCloser io.Closer
	defer func() {
		if logCloser != nil {
			_ = logCloser.Close() // Best effort close
		}
	}()

	app := newApp(ctx)
	app.Before = func(*cli.Context) error {
		logCloser = setupLogging(debugMode)
		return resolveSettingsPath()
	}

	if err := app.Run(args); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}
	return config.ExitCodeSuccess
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = config.AppCommand
	app.Usage = config.UsageApp
	app.Version = config.Version
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        config.FlagConfig,
			Usage:       config.FlagDescConfig,
			Destination: &settingsPath,
		},
		cli.BoolFlag{
			Name:        config.FlagDebug,
			Usage:       config.FlagDescDebug,
			Destination: &debugMode,
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  config.CmdRun,
			Usage: config.UsageRun,
			Action: func(*cli.Context) error {
				logStartupInfo()
				if err := runDaemon(ctx, settingsPath); err != nil {
					return err
				}
				slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
				return nil
			},
		},
		{
			Name:  config.CmdSync,
			Usage: config.UsageSync,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:        config.FlagDryRun,
					Usage:       config.FlagDescDryRun,
					Destination: &dryRun,
				},
			},
			Action: func(*cli.Context) error {
				return syncOnce(ctx, os.Stdout, settingsPath, dryRun)
			},
		},
		{
			Name:  config.CmdKey,
			Usage: config.UsageKey,
			Subcommands: []cli.Command{
				{
					Name:   config.CmdKeySet,
					Usage:  config.UsageKeySet,
					Action: func(c *cli.Context) error { return setKey(c.Args().First()) },
				},
				{
					Name:   config.CmdKeyDel,
					Usage:  config.UsageKeyDel,
					Action: func(*cli.Context) error { return deleteKey() },
				},
			},
		},
		{
			Name:  config.CmdVersion,
			Usage: config.UsageVersion,
			Action: func(c *cli.Context) error {
				printVersion(c.App.Writer)
				return nil
			},
		},
	}
	return app
}

// resolveSettingsPath defaults the settings file to the user config directory.
func resolveSettingsPath() error {
	if settingsPath != "" {
		return nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrConfigDir, err)
	}
	settingsPath = filepath.Join(configDir, config.AppID, config.SettingsFileName)
	return nil
}

// printVersion outputs the build information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, config.MsgVersionOutput,
		config.AppName,
		config.Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
		slog.String(config.LogKeyPath, settingsPath),
	)
}

// setupLogging configures the default slog logger.
// Logs go to stderr so that the sync command keeps stdout for its JSON output.
func setupLogging(debugMode bool) io.Closer {
	writers := []io.Writer{os.Stderr}
	var logFile *os.File

	if logPath, err := getLogFilePath(); err == nil {
		// O_TRUNC resets logs on restart to prevent indefinite growth.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), opts)))

	if logFile == nil {
		return nil
	}
	return logFile
}

// getLogFilePath determines the platform-specific cache directory for logs.
func getLogFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	appDir := filepath.Join(cacheDir, config.AppID)

	// Ensure the directory exists with restricted permissions (700).
	if err := os.MkdirAll(appDir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	return filepath.Join(appDir, config.LogFileName), nil
}
