package file

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const watchMask = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch reports changes to record files made by any process, including this
// one. Temporary files are ignored, so a Save shows up once its rename lands.
func (d *Driver) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating history watcher: %w", err)
	}

	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching history dir: %w", err)
	}

	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&watchMask == 0 {
					continue
				}
				if _, ok := recordID(filepath.Base(event.Name)); !ok {
					continue
				}

				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("history watcher error", "error", err)
			}
		}
	}()

	return changes, nil
}
