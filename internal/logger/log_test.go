package logger

import (
	"bytes"
	"strings"
	"testing"

	"cwl-mount/internal/config"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want zerolog.Level
	}{
		{config.Config{}, zerolog.WarnLevel},
		{config.Config{Verbosity: 1}, zerolog.InfoLevel},
		{config.Config{Verbosity: 2}, zerolog.DebugLevel},
		{config.Config{Verbosity: 5}, zerolog.TraceLevel},
		{config.Config{Verbosity: 2, LogLevel: "error"}, zerolog.ErrorLevel},
		{config.Config{Verbosity: 1, LogLevel: "bogus"}, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := Level(tt.cfg); got != tt.want {
			t.Errorf("Level(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}

func TestInitWriterTagsEveryLine(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWriter(config.Config{Verbosity: 1, ServiceName: "cwl-mount", InstanceID: "host-1"}, &buf)

	zlog.Debug().Msg("hidden")
	zlog.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"message":"shown"`, `"service":"cwl-mount"`, `"instance":"host-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}
