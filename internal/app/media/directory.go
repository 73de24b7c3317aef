package media

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
)

type DirectorySourceConfig struct {
	Path       string   `yaml:"path" mapstructure:"path" validate:"required"`
	Recursive  bool     `yaml:"recursive" mapstructure:"recursive"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions" default:"[\".jpg\",\".jpeg\",\".png\",\".gif\",\".webp\",\".bmp\"]" validate:"min=1"`
	Watch      *bool    `yaml:"watch" mapstructure:"watch" default:"true"`
	SettleMs   int      `yaml:"settle_ms" mapstructure:"settle_ms" default:"500" validate:"gte=0,lte=10000"`
}

// DirectorySource provides the image files of a local directory.
type DirectorySource struct {
	config *DirectorySourceConfig
	root   string
}

// NewDirectorySource creates a new DirectorySource.
func NewDirectorySource(settings map[string]any) (*DirectorySource, error) {
	var config DirectorySourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid path %s", config.Path)
	}
	for i, ext := range config.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		config.Extensions[i] = ext
	}

	return &DirectorySource{config: &config, root: root}, nil
}

// Name returns the source name.
func (s *DirectorySource) Name() string {
	return string(item.SourceTypeDirectory)
}

// Load walks the directory and returns its image files ordered by path.
func (s *DirectorySource) Load(ctx context.Context) ([]item.Item, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", s.root)
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", s.root)
	}

	var (
		items []item.Item
		total int64
	)
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != s.root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && !s.config.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.accepts(path) {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		items = append(items, s.newItem(path))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", s.root)
	}

	zlog.Info().Msgf("directory source loaded: path=%s files=%s size=%s",
		s.root, humanize.Comma(int64(len(items))), humanize.Bytes(uint64(total)))
	return items, nil
}

// Watch reports image files created in or removed from the directory.
func (s *DirectorySource) Watch(ctx context.Context, onChange func(Change)) error {
	if s.config.Watch != nil && !*s.config.Watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	if err := s.addDirs(watcher, s.root); err != nil {
		watcher.Close()
		return err
	}

	go s.watchLoop(ctx, watcher, onChange)
	zlog.Info().Msgf("watching directory: path=%s recursive=%v", s.root, s.config.Recursive)
	return nil
}

func (s *DirectorySource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(Change)) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, watcher, event, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zlog.Error().Msgf("directory watcher error: %v", err)
		}
	}
}

func (s *DirectorySource) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, onChange func(Change)) {
	if isHidden(event.Name) || strings.HasSuffix(event.Name, ".tmp") {
		return
	}
	isImage := s.accepts(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isImage:
		// Give the writer time to finish the file
		settle := time.Duration(s.config.SettleMs) * time.Millisecond
		go func(path string) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(settle):
			}
			if fi, err := os.Stat(path); err != nil || fi.IsDir() {
				return
			}
			zlog.Debug().Msgf("image file added: %s", path)
			onChange(Change{Kind: ChangeAdded, Item: s.newItem(path)})
		}(event.Name)

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isImage:
		zlog.Debug().Msgf("image file removed: %s", event.Name)
		onChange(Change{Kind: ChangeRemoved, Item: s.newItem(event.Name)})

	case event.Has(fsnotify.Create) && s.config.Recursive:
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := s.addDirs(watcher, event.Name); err != nil {
				zlog.Warn().Msgf("failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}
}

func (s *DirectorySource) addDirs(watcher *fsnotify.Watcher, dir string) error {
	if !s.config.Recursive {
		return errors.Wrapf(watcher.Add(dir), "failed to watch %s", dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		return errors.Wrapf(watcher.Add(path), "failed to watch %s", path)
	})
}

func (s *DirectorySource) accepts(path string) bool {
	return slices.Contains(s.config.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (s *DirectorySource) newItem(path string) item.Item {
	base := filepath.Base(path)
	it := item.New(strings.TrimSuffix(base, filepath.Ext(base)), path, item.SourceTypeDirectory)
	if rel, err := filepath.Rel(s.root, filepath.Dir(path)); err == nil && rel != "." {
		it.Caption = rel
	}
	return it
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
