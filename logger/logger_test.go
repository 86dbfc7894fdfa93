package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestVerbosityToLevel(t *testing.T) {
	cases := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}

	for _, tc := range cases {
		if got := VerbosityToLevel(tc.verbosity); got != tc.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tc.verbosity, got, tc.want)
		}
	}
}

func TestLoggerNeverNil(t *testing.T) {
	if Logger == nil {
		t.Fatal("Logger is nil before Initialize")
	}

	if err := Initialize(true, 1); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after Initialize")
	}

	// Named loggers must be usable immediately.
	Named("test").Debugw("named logger works", "key", "value")
}
