package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"console debug", Config{Level: "debug", Encoding: "console"}},
		{"json info", Config{Level: "info", Encoding: "json"}},
		{"unknown level falls back", Config{Level: "loud", Encoding: "console"}},
		{"caller and stacktrace disabled", Config{
			Level: "warn", Encoding: "json",
			DisableCaller: true, DisableStacktrace: true,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(tt.cfg)
			assert.NotNil(t, log)
			log.Debug("probe")
		})
	}
}
