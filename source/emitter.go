package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/datazip-inc/sqlstream/types"
)

// Emitter hands records to the downstream pipeline. A nil error means the
// records are delivered and the watermark may advance.
type Emitter interface {
	Emit(ctx context.Context, tag string, records []types.Record) error
}

// JSONEmitter writes one JSON event per line.
type JSONEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{w: w}
}

func (e *JSONEmitter) Emit(_ context.Context, tag string, records []types.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, record := range records {
		data, err := types.Event{Tag: tag, Time: record.Time, Record: record.Fields}.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode event: %s", err)
		}
		if _, err := e.w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write event: %s", err)
		}
	}
	return nil
}
