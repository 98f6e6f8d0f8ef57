package service

import (
	"log/slog"
	"sort"
	"time"
)

// Engine identifiers used across the CLI for selection.
const (
	EngineRemote = "remote"
	EngineLocal  = "local"
)

// RuntimeFactory builds a Service from the generic config below.
type RuntimeFactory func(RuntimeConfig) (Service, error)

// RuntimeConfig carries common knobs used by engines.
type RuntimeConfig struct {
	// Remote
	BaseURL     string
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Local
	DataDir     string
	PreviewRows int
	MaxRows     int
	Sheet       string

	Logger *slog.Logger
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers an engine name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Service for the given engine if registered. The bool is false for
// unknown engines.
func GetRuntime(name string, cfg RuntimeConfig) (Service, bool, error) {
	f, ok := registry[name]
	if !ok {
		return nil, false, nil
	}
	svc, err := f(cfg)
	return svc, true, err
}

// Runtimes lists the registered engine names.
func Runtimes() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterRuntime(EngineRemote, func(c RuntimeConfig) (Service, error) {
		return NewClient(c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay).WithLogger(c.Logger), nil
	})
	RegisterRuntime(EngineLocal, func(c RuntimeConfig) (Service, error) {
		return NewLocal(LocalOptions{
			DataDir:     c.DataDir,
			PreviewRows: c.PreviewRows,
			MaxRows:     c.MaxRows,
			Sheet:       c.Sheet,
			Logger:      c.Logger,
		})
	})
}
