package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/quotacache"
)

func TestWritesLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewJSONHandler(&buf, nil))}

	l.Debug("filtered out at info", nil)
	l.Warn("trim: indexed entry missing from store", quotacache.Fields{"key": "cache:gone"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["level"] != "WARN" || rec["key"] != "cache:gone" {
		t.Fatalf("record=%v", rec)
	}
}
