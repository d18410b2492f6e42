package mocklogger

import (
	"testing"

	"github.com/hugolhafner/go-connect/logger"
)

func (m *MockLogger) AssertCalledWithMessage(tb testing.TB, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Message == message {
			return
		}
	}

	tb.Errorf("expected log message '%s' to be called", message)
}

func (m *MockLogger) AssertCalledWithLevelAndMessage(tb testing.TB, level logger.LogLevel, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Level == level && entry.Message == message {
			return
		}
	}

	tb.Errorf("expected log with level '%s' and message '%s' to be called", level.String(), message)
}

func (m *MockLogger) AssertNotCalledWithMessage(tb testing.TB, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Message == message {
			tb.Errorf("expected log message '%s' to NOT be called", message)
			return
		}
	}
}

func (m *MockLogger) AssertNotCalledWithLevel(tb testing.TB, level logger.LogLevel) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Level == level {
			tb.Errorf("expected log level '%s' to NOT be called, got '%s'", level.String(), entry.Message)
			return
		}
	}
}

// CountMessage returns how many entries carry message.
func (m *MockLogger) CountMessage(message string) int {
	n := 0
	for _, entry := range m.Entries() {
		if entry.Message == message {
			n++
		}
	}
	return n
}

// Value returns the value bound to key in the first entry with message.
func (m *MockLogger) Value(message, key string) (any, bool) {
	for _, entry := range m.Entries() {
		if entry.Message != message {
			continue
		}
		for i := 0; i+1 < len(entry.KV); i += 2 {
			if k, ok := entry.KV[i].(string); ok && k == key {
				return entry.KV[i+1], true
			}
		}
	}
	return nil, false
}
