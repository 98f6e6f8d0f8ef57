package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cfgpkg "github.com/KaramelBytes/analytica-cli/internal/config"
	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/KaramelBytes/analytica-cli/internal/utils"
	"github.com/KaramelBytes/analytica-cli/internal/workflow"
)

// runtimeConfig resolves the engine name and its settings, falling back to defaults when no
// configuration could be loaded.
func runtimeConfig(cfg *cfgpkg.Global) (string, service.RuntimeConfig) {
	rc := service.RuntimeConfig{
		BaseURL:     service.DefaultBaseURL,
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		PreviewRows: service.DefaultPreviewRows,
		Logger:      slog.Default(),
	}
	engine := service.EngineRemote
	if cfg != nil {
		if cfg.ServiceURL != "" {
			rc.BaseURL = cfg.ServiceURL
		}
		if cfg.HTTPTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			rc.RetryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			rc.BaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			rc.MaxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
		if cfg.PreviewRows > 0 {
			rc.PreviewRows = cfg.PreviewRows
		}
		rc.DataDir = cfg.DataDir
		if cfg.Engine != "" {
			engine = cfg.Engine
		}
	}
	// Flags win even when the config failed to load.
	if flagEngine != "" {
		engine = flagEngine
	}
	if flagServiceURL != "" {
		rc.BaseURL = flagServiceURL
	}
	rc.Sheet = flagSheet
	if flagMaxRows > 0 {
		rc.MaxRows = flagMaxRows
	}
	return strings.ToLower(strings.TrimSpace(engine)), rc
}

// buildService returns the Service for the configured engine.
func buildService(cfg *cfgpkg.Global) (service.Service, string, error) {
	engine, rc := runtimeConfig(cfg)
	svc, ok, err := service.GetRuntime(engine, rc)
	if !ok {
		return nil, engine, fmt.Errorf("unknown engine %q (available: %s)", engine, strings.Join(service.Runtimes(), ", "))
	}
	if err != nil {
		return nil, engine, fmt.Errorf("start %s engine: %w", engine, err)
	}
	slog.Debug("engine ready", "engine", engine, "service_url", rc.BaseURL)
	return svc, engine, nil
}

func newController(svc service.Service) *workflow.Controller {
	return workflow.New(svc, tools.Default(), nil, workflow.WithLogger(slog.Default()))
}

// writeOutcome saves o as tagged JSON.
func writeOutcome(path string, o outcome.Outcome) error {
	b, err := outcome.Marshal(o)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, append(b, '\n')); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// expandFiles resolves globs and literal paths, deduplicated and sorted.
func expandFiles(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// splitColumns turns repeated and comma-separated flag values into one column list.
func splitColumns(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
