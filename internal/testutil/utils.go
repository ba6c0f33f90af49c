package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger writes to stdout prefixed with the test name. Hub and client
// goroutines may outlive the test, so it does not log through t.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
