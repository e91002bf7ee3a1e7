package pool

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// WatchFile reloads the pool the moment accounts.json changes on disk,
// complementing StartReloadLoop's periodic poll with near-immediate pickup
// when an admin surface (or another gateway instance sharing the file)
// edits it directly. Events are debounced by debounce so a burst of writes
// from an editor's save (rename + create + write) triggers one reload.
func (p *Pool) WatchFile(ctx context.Context, path string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() { p.reloadFrom(path) })
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("pool file watcher error")
			}
		}
	}()
	return nil
}
