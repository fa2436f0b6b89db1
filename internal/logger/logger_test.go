package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEmitWrapsExtraFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := L()
	Set(zap.New(core))
	t.Cleanup(func() { Set(prev) })

	Info("calculation stored", map[string]interface{}{"id": "abc", "sink": "sqlite"})
	Warn("queue full", nil)
	Debug("hidden", map[string]interface{}{"x": 1})
	Error("sink failed", map[string]interface{}{"error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	extra, ok := entries[0].ContextMap()["extra"].(map[string]interface{})
	if !ok {
		t.Fatalf("extra missing: %v", entries[0].ContextMap())
	}
	if extra["id"] != "abc" || extra["sink"] != "sqlite" {
		t.Errorf("extra = %v", extra)
	}
	if _, ok := entries[1].ContextMap()["extra"]; ok {
		t.Error("nil extra should add no field")
	}
	if entries[2].Level != zapcore.ErrorLevel {
		t.Errorf("level = %v", entries[2].Level)
	}
	errExtra := entries[2].ContextMap()["extra"].(map[string]interface{})
	if errExtra["error"] != "boom" {
		t.Errorf("error field = %v", errExtra["error"])
	}
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })
	if err := Init("not-a-level"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !L().Core().Enabled(zapcore.InfoLevel) || L().Core().Enabled(zapcore.DebugLevel) {
		t.Error("unknown level should fall back to info")
	}
}
