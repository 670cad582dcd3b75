package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CredentialsWatcher monitors the configuration files and invokes the supplied
// callback whenever the effective API key list changes. Stop must be called to
// release filesystem resources.
type CredentialsWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *CredentialsWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchCredentials wires fsnotify around the loader's files and reloads the
// configuration on any change. onChange only fires when the deduplicated key
// list differs from the previous one. Other settings require a restart.
func (l *Loader) WatchCredentials(ctx context.Context, current []string, onChange func([]string), onError func(error)) (*CredentialsWatcher, error) {
	if onChange == nil {
		return nil, errors.New("config: watch credentials requires a change callback")
	}
	files := l.Files()
	if len(files) == 0 {
		return nil, errors.New("config: no configuration file to watch")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch credentials: %w", err)
	}

	targets := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{}, len(files))
	for _, path := range files {
		resolved := path
		if abs, err := filepath.Abs(path); err == nil {
			resolved = abs
		}
		resolved = filepath.Clean(resolved)
		targets[resolved] = struct{}{}
		dir := filepath.Dir(resolved)
		if _, ok := dirs[dir]; ok {
			continue
		}
		// Watch the directory so editors that replace files atomically still notify.
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			cancel()
			return nil, fmt.Errorf("config: watch add %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	done := make(chan struct{})
	watch := &CredentialsWatcher{cancel: cancel, done: done}
	last := slices.Clone(current)

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch credentials close: %w", err))
			}
		}()

		reload := func() {
			cfg, err := l.Load(watchCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			keys := cfg.AI.Credentials()
			if slices.Equal(keys, last) {
				return
			}
			last = keys
			onChange(slices.Clone(keys))
		}

		const debounce = 25 * time.Millisecond
		var reloadTimer *time.Timer
		var reloadSignal <-chan time.Time
		scheduleReload := func() {
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(debounce)
			} else {
				if !reloadTimer.Stop() {
					select {
					case <-reloadTimer.C:
					default:
					}
				}
				reloadTimer.Reset(debounce)
			}
			reloadSignal = reloadTimer.C
		}
		defer func() {
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
		}()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-reloadSignal:
				reloadSignal = nil
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, watched := targets[filepath.Clean(event.Name)]; !watched {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config: watch error: %w", err))
				}
			}
		}
	}()

	return watch, nil
}
