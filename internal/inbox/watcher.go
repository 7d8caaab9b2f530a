package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lectorlips/internal/checksum"
	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/storage"
)

// settleDelay groups the burst of events an editor emits for one save of
// a single file.
const settleDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the inbox root and compiles keyframe
// files as they are created or written, until ctx is cancelled. New
// directories created at runtime are added to the watch list.
func Watch(ctx context.Context, svc *compileservice.Service, store storage.Provider, req compileservice.Request, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// Releases pending settle timers whichever way the loop exits.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each path settles on its own: a later event for the same path bumps
	// its generation and the earlier timer's delivery is ignored.
	type settled struct {
		rel string
		gen int
	}
	gens := make(map[string]int)
	due := make(chan settled)

	schedule := func(rel string) {
		gens[rel]++
		s := settled{rel: rel, gen: gens[rel]}
		time.AfterFunc(settleDelay, func() {
			select {
			case due <- s:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case s := <-due:
			if gens[s.rel] != s.gen {
				continue
			}
			delete(gens, s.rel)
			if unchanged(svc, root, s.rel) {
				continue
			}
			compileFile(ctx, svc, store, s.rel, req, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					scheduleDir(root, ev.Name, schedule)
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isKeyframeFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			schedule(rel)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// unchanged reports whether rel still matches its last recorded compile.
func unchanged(svc *compileservice.Service, root, rel string) bool {
	sum, err := checksum.File(filepath.Join(root, rel))
	if err != nil {
		return false
	}
	last, err := svc.LastChecksum(rel)
	return err == nil && last == sum
}

// scheduleDir queues every keyframe file already inside a new directory.
func scheduleDir(root, dir string, schedule func(string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isKeyframeFile(path) {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			schedule(rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
