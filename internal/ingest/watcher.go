package ingest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/statement-agent/constants"
)

type WatchConfig struct {
	DataDir  string
	Sources  []string      // source ids under DataDir to watch
	Debounce time.Duration // coalesce rapid write/rename bursts
}

// Watch emits a source id whenever its document or ground truth changes.
// Events for one source inside the debounce window are coalesced. Both
// channels close when ctx is done.
func Watch(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Sources) == 0 {
		return nil, nil, errors.New("watch: no sources")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	dirs := make(map[string]string, len(cfg.Sources))
	for _, s := range cfg.Sources {
		dir := filepath.Clean(filepath.Join(cfg.DataDir, s))
		if err := w.Add(dir); err != nil {
			logger.Error("ingest.watch.add_failed", "dir", dir, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
		dirs[dir] = s
	}

	evCh := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_failed", "error", err)
			}
		}()

		pending := map[string]struct{}{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		flush := func() {
			for s := range pending {
				select {
				case evCh <- s:
				case <-ctx.Done():
					return
				}
				delete(pending, s)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				source, ok := dirs[filepath.Dir(filepath.Clean(e.Name))]
				if !ok || !relevant(source, e) {
					continue
				}
				logger.Debug("ingest.watch.event", "source", source, "path", e.Name, "op", e.Op.String())
				pending[source] = struct{}{}
				if cfg.Debounce <= 0 {
					flush()
					continue
				}
				timer.Reset(cfg.Debounce)
			case <-timer.C:
				flush()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()
	return evCh, errCh, nil
}

func relevant(source string, e fsnotify.Event) bool {
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	name := strings.ToLower(filepath.Base(e.Name))
	if IsHidden(name) {
		return false
	}
	if isTruth(name) {
		return true
	}
	return AllowedExt(filepath.Ext(name)) && strings.HasPrefix(name, strings.ToLower(source+constants.SampleSuffix))
}
