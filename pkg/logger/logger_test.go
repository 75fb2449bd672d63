package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"production", *ProductionConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedLoggersKeepFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, DebugLevel, JSONFormat)

	log.WithComponent("matcher").WithField("side", "ours").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "matcher", entry["component"])
	assert.Equal(t, "ours", entry["side"])
	assert.Equal(t, "hello", entry["msg"])
}

func TestWithErrorAddsErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, InfoLevel, TextFormat)

	log.WithError(errors.New("boom")).Warn("stage failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestStageTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewStageTracker("reconcile", NewWithWriter(&buf, DebugLevel, TextFormat))

	var wg sync.WaitGroup
	for _, name := range []string{"normalize ours", "normalize theirs"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = tracker.Stage(name, func() (int, error) { return 10, nil })
		}(name)
	}
	wg.Wait()

	err := tracker.Stage("match", func() (int, error) { return 3, errors.New("bad") })
	assert.EqualError(t, err, "bad")

	assert.Equal(t, int64(23), tracker.Processed())
	stages := tracker.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, "match", stages[2].Name)
	assert.True(t, strings.Contains(stages[2].String(), "3 records"))

	tracker.Complete()
	assert.Contains(t, buf.String(), "Operation completed")
}
