package ingestor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/config"
	"github.com/GabrielNunesIT/cwlogs-connector/internal/model"
	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before it is read.
const DefaultSettle = 200 * time.Millisecond

// fileStamp identifies one version of a file already ingested.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// DirIngestor watches a directory and sends each matching file as one payload.
// Files present at start are read first, in name order.
type DirIngestor struct {
	cfg    config.DirIngestorConfig
	name   string
	settle time.Duration
	logger logger.ILogger
}

// NewDirIngestor creates a new directory watching ingestor.
func NewDirIngestor(cfg config.DirIngestorConfig, log logger.ILogger) *DirIngestor {
	if cfg.Pattern == "" {
		cfg.Pattern = "*.gz"
	}
	return &DirIngestor{
		cfg:    cfg,
		name:   "dir",
		settle: DefaultSettle,
		logger: log.SubLogger("DirIngestor"),
	}
}

// Name returns the ingestor identifier.
func (d *DirIngestor) Name() string {
	return d.name
}

// Start reads existing files, then watches for new ones until ctx is cancelled.
func (d *DirIngestor) Start(ctx context.Context, out chan<- *model.Payload) error {
	defer close(out)

	if _, err := filepath.Match(d.cfg.Pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", d.cfg.Pattern, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before listing so files created in between are not missed.
	if err := watcher.Add(d.cfg.Path); err != nil {
		return fmt.Errorf("watching directory %q: %w", d.cfg.Path, err)
	}

	seen := make(map[string]fileStamp)

	existing, err := d.list()
	if err != nil {
		return err
	}
	d.logger.Infof("watching directory: path=%s, pattern=%s, existing=%d", d.cfg.Path, d.cfg.Pattern, len(existing))
	for _, path := range existing {
		if err := d.ingest(ctx, path, seen, out); err != nil {
			return err
		}
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(d.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !d.matches(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case now := <-ticker.C:
			ready := make([]string, 0, len(pending))
			for path, last := range pending {
				if now.Sub(last) >= d.settle {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				delete(pending, path)
				if err := d.ingest(ctx, path, seen, out); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warningf("fsnotify error: %v", err)
		}
	}
}

// list returns the matching regular files already in the directory, sorted.
func (d *DirIngestor) list() ([]string, error) {
	entries, err := os.ReadDir(d.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", d.cfg.Path, err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && d.matches(e.Name()) {
			paths = append(paths, filepath.Join(d.cfg.Path, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *DirIngestor) matches(path string) bool {
	ok, _ := filepath.Match(d.cfg.Pattern, filepath.Base(path))
	return ok
}

// ingest sends one file as a payload. Unreadable files are logged and
// skipped; only cancellation is returned as an error.
func (d *DirIngestor) ingest(ctx context.Context, path string, seen map[string]fileStamp, out chan<- *model.Payload) error {
	info, err := os.Stat(path)
	if err != nil {
		// Already removed, typically by a previous DeleteAfterRead.
		d.logger.Debugf("skipping vanished file: path=%s", path)
		return nil
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	if prev, ok := seen[path]; ok && prev == stamp {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warningf("failed to read file: path=%s, err=%v", path, err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	if err := send(ctx, out, model.NewPayload(d.name, filepath.Base(path), data)); err != nil {
		return err
	}
	d.logger.Debugf("file ingested: path=%s, bytes=%d", path, len(data))

	if d.cfg.DeleteAfterRead {
		if err := os.Remove(path); err != nil {
			d.logger.Warningf("failed to delete file: path=%s, err=%v", path, err)
		}
		delete(seen, path)
		return nil
	}
	seen[path] = stamp
	return nil
}
