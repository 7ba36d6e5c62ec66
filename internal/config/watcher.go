package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ReloadFunc вызывается с новым конфигом после изменения файла.
type ReloadFunc func(ctx context.Context, cfg *Config) error

// WatcherConfig — конфигурация Watcher.
type WatcherConfig struct {
	// Path — файл конфигурации.
	Path string

	// OnReload — обработчик нового конфига.
	OnReload ReloadFunc

	// Debounce — задержка перед перечитыванием (default: 500ms).
	// Редакторы пишут файл несколькими событиями подряд.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher следит за файлом конфигурации и перечитывает его.
//
// Следит за каталогом, а не за файлом: при атомарной замене
// (rename поверх) watch на сам файл теряется.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher создаёт Watcher. Наблюдение начинается в Run.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("config watcher: path is empty")
	}
	if cfg.OnReload == nil {
		return nil, errors.New("config watcher: OnReload is nil")
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", cfg.Path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     path,
		onReload: cfg.OnReload,
		debounce: debounce,
		logger:   logger.With("config", path),
		watcher:  w,
	}, nil
}

// Run обрабатывает события до отмены ctx. Закрывает fsnotify watcher на выходе.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	w.logger.Info("config watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("config file changed", "op", event.Op.String())
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// schedule откладывает перечитывание на debounce.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Error("config reload failed", "error", err)
		}
	})
}

// reload перечитывает файл и вызывает OnReload.
// Некорректный конфиг не применяется: остаётся предыдущий.
func (w *Watcher) reload(ctx context.Context) error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := w.onReload(ctx, cfg); err != nil {
		return errors.Wrap(err, "apply reloaded config")
	}

	w.logger.Info("config reloaded", "jobs", len(cfg.Jobs))
	return nil
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("failed to close config watcher", "error", err)
	}
}
