package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/dcverify/internal/cli/config"
	"github.com/leapstack-labs/dcverify/internal/discovery"
	"github.com/spf13/cobra"
)

const watchDebounce = 100 * time.Millisecond

// watchedExtensions trigger a re-check when written or created.
var watchedExtensions = map[string]bool{".py": true, ".ts": true, ".tsx": true}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run check when sources change",
		Long: `Run check, then watch every adapter's source tree and run it again
whenever a .py, .ts or .tsx file is written. Stop with Ctrl+C.`,
		Annotations: map[string]string{BindsConfigFlags: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd)
		},
	}

	addReportFlags(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.ValidateAdapters(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := cmdCtx.Renderer
	check := func() {
		result, err := cmdCtx.Engine.Run(ctx)
		if err != nil {
			r.Error(err.Error())
			return
		}
		if err := writeCheck(cmdCtx, result); err != nil && !errors.Is(err, ErrCriticalIssues) {
			r.Error(err.Error())
		}
	}

	check()
	r.Muted("Watching for changes...")
	return watchSources(ctx, watchDirs(cmdCtx.Cfg), cmdCtx.Logger, check)
}

// watchDirs returns the roots to watch for each adapter.
func watchDirs(cfg *config.Config) []string {
	var dirs []string
	for _, a := range cfg.Adapters {
		if a.AppPath != "" {
			if info, err := os.Stat(a.AppPath); err == nil && !info.IsDir() {
				dirs = append(dirs, filepath.Dir(a.AppPath))
			} else {
				dirs = append(dirs, a.AppPath)
			}
		}
		dirs = append(dirs, a.SrcPaths...)
	}
	return dirs
}

// watchSources calls onChange after source files under roots change, at most
// once per debounce window and never concurrently. It returns when ctx is done.
func watchSources(ctx context.Context, roots []string, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range roots {
		dirs, err := discovery.SourceDirs(root)
		if err != nil {
			// Don't fail - continue without watching this root
			logger.Warn("failed to watch directory", slog.String("dir", root), slog.String("error", err.Error()))
			continue
		}
		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("failed to watch directory", slog.String("dir", dir), slog.String("error", err.Error()))
			}
		}
	}

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		// Wait for an in-flight check.
		mu.Lock()
		mu.Unlock() //nolint:staticcheck // empty critical section
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if !watchedExtensions[filepath.Ext(event.Name)] {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				mu.Lock()
				defer mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				logger.Debug("file changed, re-checking", slog.String("file", name))
				onChange()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}
