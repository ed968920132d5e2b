package tracing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// fileExporter appends finished spans to a file as JSON lines.
type fileExporter struct {
	mu  sync.Mutex
	fw  *os.File
	enc *json.Encoder
}

func newFileExporter(path string) (*fileExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileExporter{fw: f, enc: json.NewEncoder(f)}, nil
}

func (f *fileExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fw == nil {
		return nil
	}
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		snapshot := spanSnapshotFromReadOnly(span)
		if snapshot == nil {
			continue
		}
		if err := f.enc.Encode(snapshot); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileExporter) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fw == nil {
		return nil
	}
	err := f.fw.Close()
	f.fw = nil
	return err
}
