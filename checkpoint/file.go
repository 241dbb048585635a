package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/rs/zerolog"
)

// FileStore keeps the checkpoint document in a local file that is rewritten
// atomically on every flush.
type FileStore struct {
	records
	path string
	log  zerolog.Logger
}

// OpenFile loads the document at path. A missing file is an empty mapping.
func OpenFile(path string, log zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: checkpoint path is empty", constants.ErrConfiguration)
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to read %s: %s", constants.ErrStateIO, path, err)
	}

	rows, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint file %s: %w", path, err)
	}

	log = log.With().Str("checkpoint", path).Logger()
	log.Info().Int("tables", len(rows)).Msg("loaded checkpoint")

	return &FileStore{records: records{rows: orEmpty(rows)}, path: path, log: log}, nil
}

// Flush writes a temp file next to the document, syncs it and renames it over
// the document.
func (f *FileStore) Flush(_ context.Context) error {
	data, err := f.encode()
	if err != nil {
		return fmt.Errorf("%w: %s", constants.ErrStateIO, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %s", constants.ErrStateIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %s", constants.ErrStateIO, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to write %s: %s", constants.ErrStateIO, tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to sync %s: %s", constants.ErrStateIO, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %s", constants.ErrStateIO, tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %s", constants.ErrStateIO, f.path, err)
	}
	committed = true

	f.log.Debug().Msg("checkpoint flushed")
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
