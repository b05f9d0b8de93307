package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// FileStorage keeps entries in memory and snapshots them to a JSON file,
// either after every write (interval 0) or on a ticker.
type FileStorage struct {
	*MemStorage
	path     string
	interval time.Duration
	syncSave bool
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
}

type storageData struct {
	Entries map[string][]byte `json:"entries"`
}

func NewFileStorage(path string, interval time.Duration, restore bool) (*FileStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage path is empty")
	}
	fs := &FileStorage{
		MemStorage: NewMemStorage(),
		path:       path,
		interval:   interval,
		syncSave:   interval <= 0,
	}

	if restore {
		if err := fs.restore(context.Background()); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not restore key/value store from file")
		}
	}
	if !fs.syncSave {
		fs.stop = make(chan struct{})
		fs.done = make(chan struct{})
		go fs.autoSave()
	}
	return fs, nil
}

func (f *FileStorage) restore(ctx context.Context) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	var data storageData
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return err
	}
	for k, v := range data.Entries {
		if err := f.MemStorage.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileStorage) save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmpfile, err := os.CreateTemp(filepath.Dir(f.path), "kv-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpfile.Name())

	if err := json.NewEncoder(tmpfile).Encode(storageData{Entries: f.Snapshot()}); err != nil {
		tmpfile.Close()
		return err
	}
	if err := tmpfile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpfile.Name(), f.path)
}

func (f *FileStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := f.MemStorage.Set(ctx, key, value); err != nil {
		return err
	}
	if f.syncSave {
		if err := f.save(); err != nil {
			return fmt.Errorf("save key/value file: %w", err)
		}
	}
	return nil
}

func (f *FileStorage) autoSave() {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.save(); err != nil {
				log.Error().Err(err).Str("path", f.path).Msg("error saving key/value store")
			}
		case <-f.stop:
			return
		}
	}
}

// Close stops the autosave loop and writes a final snapshot.
func (f *FileStorage) Close() error {
	if f.stop != nil {
		close(f.stop)
		<-f.done
		f.stop = nil
	}
	return f.save()
}
