package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 300 * time.Millisecond

// watch runs the script, then runs it again after each change until ctx is
// done. Run failures are printed and do not stop the loop.
func (r *runner) watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often save by replacing the file, which drops a watch on the
	// file itself.
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	r.watchRun(ctx, path)
	fmt.Fprintln(r.out, dimStyle.Render("watching "+path+" for changes (ctrl-c to stop)"))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("script changed")
			pending = time.After(watchDebounce)

		case <-pending:
			pending = nil
			fmt.Fprintln(r.out, dimStyle.Render(time.Now().Format("15:04:05")+" change detected, re-running"))
			r.watchRun(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (r *runner) watchRun(ctx context.Context, path string) {
	if _, err := r.runFile(ctx, path); err != nil {
		fmt.Fprintln(r.errOut, failStyle.Render("✗ "+err.Error()))
	}
}
