package checkpoint

import (
	"context"

	"github.com/rs/zerolog"
)

// MemoryStore keeps checkpoints for the process lifetime only.
type MemoryStore struct {
	records
}

func NewMemoryStore(log zerolog.Logger) *MemoryStore {
	log.Warn().Msg("no checkpoint storage configured, polling is not resumable across restarts")
	return &MemoryStore{records: records{rows: orEmpty(nil)}}
}

func (m *MemoryStore) Flush(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
