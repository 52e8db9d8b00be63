package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/usrz/devws/internal/buildkit"
	"github.com/usrz/devws/internal/config"
	"github.com/usrz/devws/internal/orchestrator"
	"github.com/usrz/devws/internal/reload"
	"github.com/usrz/devws/internal/ui"
)

var (
	devHost string
	devPort int
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the orchestrated dev loop",
	Long: `Start the development loop.

Background targets are built to completion and kept under watch; the served
target is exposed over a hot-reloading HTTP connection; the app process is
started against the serve URL and restarted whenever background rebuilds
settle. Editing the project config recycles the session in place.`,
	RunE: runDev,
}

func init() {
	devCmd.Flags().StringVar(&devHost, "host", "", "Interface for the serving server (overrides config)")
	devCmd.Flags().IntVar(&devPort, "port", -1, "Port for the serving server (overrides config)")
}

// devState bundles everything one live session owns on the host side.
type devState struct {
	session     *orchestrator.Session
	servedWatch *buildkit.WatchHandle
	srv         *reload.Server
}

func runDev(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProjectConfig(cfgPath)
	if err != nil {
		ui.PrintError("Failed to load %s: %v", cfgPath, err)
		return err
	}
	applyDevOverrides(cmd, cfg)

	logger := log.Default()
	if cfg.App.Manifest != "" {
		if m, err := config.LoadAppManifest(cfg.App.Manifest); err != nil {
			ui.PrintWarning("Failed to read app manifest: %v", err)
		} else {
			logger.Debug("app manifest loaded", "name", m.Name, "entry", m.Entry)
		}
	}
	kit := buildkit.NewKit(logger)
	env := orchestrator.NewDevEnvironment(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First Ctrl+C stops gracefully, second forces exit.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	stopSignalHandler := make(chan struct{})
	defer close(stopSignalHandler)
	go func() {
		interruptCount := 0
		for {
			select {
			case <-stopSignalHandler:
				return
			case <-sigChan:
				interruptCount++
				if interruptCount == 1 {
					ui.Println()
					ui.PrintInfo("Stopping dev session...")
					cancel()
					continue
				}
				ui.Println()
				ui.PrintWarning("Force exiting dev session...")
				os.Exit(130)
			}
		}
	}()

	state, err := startDevState(ctx, cfg, env, kit, logger, nil)
	if err != nil {
		return err
	}

	cfgChanged, err := watchConfigFile(ctx, cfgPath, logger)
	if err != nil {
		ui.PrintWarning("Config watching disabled: %v", err)
	}

	printDevFooter(state.srv.URL())

	for {
		select {
		case <-ctx.Done():
			teardown(state)
			return nil

		case <-state.session.Done():
			status := state.session.ExitStatus()
			teardown(state)
			if status != 0 {
				os.Exit(status)
			}
			return nil

		case <-cfgChanged:
			ui.PrintInfo("Config changed, recycling dev session...")
			newCfg, err := config.LoadProjectConfig(cfgPath)
			if err != nil {
				ui.PrintWarning("Keeping current session, config reload failed: %v", err)
				continue
			}
			applyDevOverrides(cmd, newCfg)

			// The hosting side owns the old serving socket and served
			// watch; the replacement session only supersedes the
			// orchestration pair.
			prev := state.session
			state.srv.Close()
			state.servedWatch.Stop()

			state, err = startDevState(ctx, newCfg, env, kit, logger, prev)
			if err != nil {
				ui.PrintError("Failed to recycle dev session: %v", err)
				return err
			}
			printDevFooter(state.srv.URL())
		}
	}
}

// startDevState brings up one complete session: background watches via
// Init, the served target's own watch feeding the reload hub, the serving
// server, and the first app process start via Listen.
func startDevState(
	ctx context.Context,
	cfg *config.ProjectConfig,
	env *orchestrator.DevEnvironment,
	kit *buildkit.Kit,
	logger *log.Logger,
	prev *orchestrator.Session,
) (*devState, error) {
	session, err := env.CreateSession(cfg.Project.Name, cfg, func(ctx context.Context, t config.TargetConfig) (orchestrator.Watch, error) {
		return kit.StartWatch(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	ui.PrintInfo("Building background targets...")
	if err := session.Init(ctx, prev); err != nil {
		return nil, fmt.Errorf("failed to initialize dev session: %w", err)
	}

	served := cfg.ServedTarget()
	ui.PrintInfo("Building served target %s...", served.Name)
	hub := reload.NewHub(logger)
	servedWatch, err := kit.StartWatch(ctx, served)
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := awaitFirstServedBuild(servedWatch); err != nil {
		servedWatch.Stop()
		session.Close()
		return nil, err
	}
	go pumpServedEvents(servedWatch, hub, logger)

	srv := reload.NewServer(served.OutDir, hub, logger)
	if err := srv.Start(cfg.Dev.Host, cfg.Dev.Port); err != nil {
		servedWatch.Stop()
		session.Close()
		return nil, err
	}

	if err := session.Listen(srv); err != nil {
		servedWatch.Stop()
		session.Close()
		return nil, fmt.Errorf("failed to start app process: %w", err)
	}

	writeDevManifest(cfg, srv.URL(), logger)

	return &devState{
		session:     session,
		servedWatch: servedWatch,
		srv:         srv,
	}, nil
}

func teardown(state *devState) {
	state.session.Close()
	state.srv.Close()
	state.servedWatch.Stop()
}

// awaitFirstServedBuild blocks until the served target's first build cycle
// ends, failing if it failed.
func awaitFirstServedBuild(w *buildkit.WatchHandle) error {
	for ev := range w.Events() {
		switch ev.Kind {
		case buildkit.EventBuildSuccess:
			return nil
		case buildkit.EventBuildError:
			return ev.Err
		}
	}
	return fmt.Errorf("served target watch ended before its first build completed")
}

// pumpServedEvents pushes reload frames to connected clients whenever the
// served target rebuilds successfully. The served target hot-reloads; it
// never restarts the app process.
func pumpServedEvents(w *buildkit.WatchHandle, hub *reload.Hub, logger *log.Logger) {
	for ev := range w.Events() {
		switch ev.Kind {
		case buildkit.EventBuildSuccess:
			logger.Debug("served target rebuilt", "target", ev.Target)
			hub.Broadcast(reload.Message{Type: "reload", Target: ev.Target})
		case buildkit.EventBuildError:
			logger.Error("rebuild failed", "target", ev.Target, "error", ev.Err)
		}
	}
}

// watchConfigFile delivers a signal when the project config file changes,
// batching editor write bursts.
func watchConfigFile(ctx context.Context, path string, logger *log.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file on save.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		var batch *time.Timer
		var batchC <-chan time.Time
		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if batch != nil {
					batch.Stop()
				}
				batch = time.NewTimer(250 * time.Millisecond)
				batchC = batch.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			case <-batchC:
				batch = nil
				batchC = nil
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}
	}()
	return changed, nil
}

// writeDevManifest renders the app manifest with the live serve URL
// injected, for external tooling that reads it.
func writeDevManifest(cfg *config.ProjectConfig, serveURL string, logger *log.Logger) {
	if cfg.App.Manifest == "" {
		return
	}
	data, err := os.ReadFile(cfg.App.Manifest)
	if err != nil {
		logger.Warn("failed to read app manifest", "error", err)
		return
	}
	out, err := config.RenderDevManifest(data, serveURL)
	if err != nil {
		logger.Warn("failed to render dev manifest", "error", err)
		return
	}
	devPath := filepath.Join(filepath.Dir(cfg.App.Manifest), "devws.dev.json")
	if err := os.WriteFile(devPath, out, 0o644); err != nil {
		logger.Warn("failed to write dev manifest", "error", err)
		return
	}
	logger.Debug("dev manifest written", "path", devPath)
}

func applyDevOverrides(cmd *cobra.Command, cfg *config.ProjectConfig) {
	if cmd.Flags().Changed("host") && devHost != "" {
		cfg.Dev.Host = devHost
	}
	if cmd.Flags().Changed("port") && devPort >= 0 {
		cfg.Dev.Port = devPort
	}
}

func printDevFooter(url string) {
	ui.Println()
	ui.PrintSuccess("Dev loop ready")
	ui.PrintLink("Serving", url)
	ui.PrintDim("Press Ctrl+C to stop")
	ui.Println()
}
