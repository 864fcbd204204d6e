package columns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// viewRecord is one entry of the column state file
type viewRecord struct {
	View    string  `json:"view" yaml:"view"`
	Columns []State `json:"columns" yaml:"columns"`
}

// FileStore keeps column layouts in a single JSON or YAML file, chosen by
// the file extension. Saves replace the file atomically.
type FileStore struct {
	path   string
	yaml   bool
	logger *zap.Logger
}

// NewFileStore creates a store backed by path
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &FileStore{
		path:   path,
		yaml:   ext == ".yaml" || ext == ".yml",
		logger: logger,
	}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file. A missing file holds no layouts.
func (s *FileStore) Load(ctx context.Context) (map[string][]State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]State{}, nil
		}
		return nil, fmt.Errorf("failed to read column state: %w", err)
	}

	var records []viewRecord
	if len(strings.TrimSpace(string(data))) > 0 {
		if s.yaml {
			err = yaml.Unmarshal(data, &records)
		} else {
			err = json.Unmarshal(data, &records)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
		}
	}

	views := make(map[string][]State, len(records))
	for _, rec := range records {
		if rec.View == "" {
			return nil, fmt.Errorf("%w: %s: record without view id", ErrCorruptState, s.path)
		}
		views[rec.View] = rec.Columns
	}
	return views, nil
}

// Save rewrites the file through a temporary file in the same directory
func (s *FileStore) Save(ctx context.Context, views map[string][]State) error {
	records := make([]viewRecord, 0, len(views))
	for _, id := range sortedViewIDs(views) {
		records = append(records, viewRecord{View: id, Columns: views[id]})
	}

	var data []byte
	var err error
	if s.yaml {
		data, err = yaml.Marshal(records)
	} else {
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode column state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write column state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write column state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Watch calls onChange whenever the file is written, created or replaced
// by another process, until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.logger.Debug("column state file changed", zap.String("op", event.Op.String()))
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("column state watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
