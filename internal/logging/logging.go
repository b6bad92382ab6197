// Package logging provides categorized structured logging for GenForge.
// Every subsystem logs through a named child of a single zap root logger,
// so output level and encoding are decided once at process start.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log categories. Child loggers are named after the subsystem they serve so
// entries can be filtered per component.
const (
	CategoryWorkflow   = "workflow"
	CategoryMiddleware = "middleware"
	CategoryRegistry   = "registry"
	CategoryLLM        = "llm"
	CategoryStore      = "store"
	CategoryArchitect  = "architect"
	CategoryTester     = "tester"
	CategoryRAG        = "rag"
	CategoryTeam       = "team"
	CategoryConfig     = "config"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init builds the process-wide root logger. verbose lowers the level to
// debug; console switches from JSON to a human-readable encoder.
func Init(verbose, console bool) error {
	cfg := zap.NewProductionConfig()
	if console {
		cfg = zap.NewDevelopmentConfig()
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the root logger. Tests use this to install observers
// or silence output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// L returns the named child logger for a category.
func L(category string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(category)
}

// S returns the named sugared logger for a category.
func S(category string) *zap.SugaredLogger {
	return L(category).Sugar()
}

// Sync flushes buffered log entries. Called on process shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
