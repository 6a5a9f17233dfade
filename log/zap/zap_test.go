package zap

import (
	"errors"
	"testing"

	"github.com/unkn0wn-root/quotacache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("cached", quotacache.Fields{"key": "cache:a", "bytes": 12})
	l.Warn("trim: remove failed", quotacache.Fields{"err": errors.New("boom")})
	l.Error("could not save entry", nil)

	all := logs.All()
	if len(all) != 3 {
		t.Fatalf("entries=%d", len(all))
	}
	if all[0].Level != zapcore.DebugLevel || all[0].ContextMap()["key"] != "cache:a" {
		t.Fatalf("debug entry=%+v", all[0])
	}
	if all[1].Level != zapcore.WarnLevel || all[1].ContextMap()["err"] != "boom" {
		t.Fatalf("warn entry=%+v", all[1].ContextMap())
	}
	if all[2].Level != zapcore.ErrorLevel || len(all[2].Context) != 0 {
		t.Fatalf("error entry=%+v", all[2])
	}
}
