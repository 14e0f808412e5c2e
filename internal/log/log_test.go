package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.base == nil || logger.entry == nil {
		t.Fatal("logger not initialized")
	}
}

func TestNew_DefaultLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	logger := New()
	if logger.base.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected default level Info, got %v", logger.base.GetLevel())
	}
}

func TestNew_CustomLevels(t *testing.T) {
	tests := []struct {
		envValue string
		expected logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"invalid", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.envValue)

			logger := New()
			if logger.base.GetLevel() != tt.expected {
				t.Errorf("for LOG_LEVEL=%s, expected level %v, got %v", tt.envValue, tt.expected, logger.base.GetLevel())
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "info")

	logger.Info("hello %s", "json")

	output := buf.String()
	if !strings.Contains(output, `"msg":"hello json"`) {
		t.Errorf("expected JSON output, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	logger := New()

	logger.SetLevel("debug")
	if logger.base.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug, got %v", logger.base.GetLevel())
	}

	// Unknown names leave the level untouched.
	logger.SetLevel("loud")
	if logger.base.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug to be kept, got %v", logger.base.GetLevel())
	}
}

func TestGetLogrus(t *testing.T) {
	logger := New()
	if logger.GetLogrus() != logger.base {
		t.Error("GetLogrus() did not return the underlying logrus instance")
	}
}

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, level)
	logger.base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, &buf
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name string
		emit func(l *Logger)
		want string
	}{
		{"trace", func(l *Logger) { l.Trace("trace %d", 1) }, "trace 1"},
		{"debug", func(l *Logger) { l.Debug("debug %d", 2) }, "debug 2"},
		{"info", func(l *Logger) { l.Info("info %d", 3) }, "info 3"},
		{"warn", func(l *Logger) { l.Warn("warn %d", 4) }, "warn 4"},
		{"error", func(l *Logger) { l.Error("error %d", 5) }, "error 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger("trace")
			tt.emit(logger)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output, got: %s", tt.want, buf.String())
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	tests := []struct {
		name string
		emit func(l *Logger)
		want []string
	}{
		{"debug", func(l *Logger) { l.DebugWithFields(logrus.Fields{"id": "123"}, "d") }, []string{"id=123"}},
		{"info", func(l *Logger) { l.InfoWithFields(logrus.Fields{"status": "ok"}, "i") }, []string{"status=ok"}},
		{"warn", func(l *Logger) { l.WarnWithFields(logrus.Fields{"reason": "timeout"}, "w") }, []string{"reason=timeout"}},
		{"error", func(l *Logger) { l.ErrorWithFields(logrus.Fields{"code": "500"}, "e") }, []string{"code=500"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger("debug")
			tt.emit(logger)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("expected %q in output, got: %s", w, buf.String())
				}
			}
		})
	}
}

func TestComponent(t *testing.T) {
	logger, buf := newBufferLogger("info")

	child := logger.Component("router").With("topic", "a/b")
	child.Info("matched")

	output := buf.String()
	if !strings.Contains(output, "component=router") || !strings.Contains(output, "topic=a/b") {
		t.Errorf("expected component fields in output, got: %s", output)
	}

	// The parent stays field-free.
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("parent logger leaked child fields: %s", buf.String())
	}
}

func TestDerivedSharesLevel(t *testing.T) {
	logger, buf := newBufferLogger("info")
	child := logger.Component("hub")

	logger.SetLevel("error")
	child.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected derived logger to follow parent level, got: %s", buf.String())
	}
}
