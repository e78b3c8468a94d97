package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainIndexer/internal/model"
)

func TestJSONLWriterWritesOneValuePerLine(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONLWriterTo(&buf)

	transfers := []model.CrossChainTransfer{
		{Key: "0xaa-7", Status: model.ReconciliationCompleted},
		{Key: "0xaa-8", Status: model.ReconciliationPending},
	}
	for _, transfer := range transfers {
		if err := w.Write(transfer); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"key":"0xaa-7"`) || !strings.Contains(lines[0], `"status":"completed"`) {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
}

func TestJSONLWriterCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "transfers.jsonl")
	w, err := NewJSONLWriter(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "{\"n\":1}\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}
