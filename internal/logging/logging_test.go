package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"webcamshooter/internal/config"
)

func TestNewWithOutput_Level(t *testing.T) {
	testCases := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			logger := NewWithOutput(config.LogConfig{Level: tc.level}, &bytes.Buffer{})
			if logger.GetLevel() != tc.want {
				t.Errorf("Expected level %s, got %s", tc.want, logger.GetLevel())
			}
		})
	}
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(config.LogConfig{Level: "info", Format: "json"}, &buf)

	Component(logger, "camera").Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "camera" {
		t.Errorf("Expected component field camera, got %v", entry["component"])
	}
	if entry["msg"] != "started" {
		t.Errorf("Expected msg started, got %v", entry["msg"])
	}
}

func TestNewWithOutput_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(config.LogConfig{Level: "info", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug message should be filtered at info level")
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Expected info message in output, got %q", out)
	}
}
