package fyreflow

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize replaces any run of characters outside [A-Za-z0-9._-] with a
// single "_"; an empty input yields "default" (spec §4.2).
func Sanitize(s string) string {
	if s == "" {
		return "default"
	}
	return unsafePathChars.ReplaceAllString(s, "_")
}

// StoragePaths is the resolved set of filesystem roots for one step
// attempt within a run.
type StoragePaths struct {
	SharedPath   string // "DISABLED" if shared storage is not enabled for this step/run
	IsolatedPath string // "DISABLED" if isolated storage is not enabled for this step/run
	RunPath      string // always resolved
}

const disabledPath = "DISABLED"

// ResolveStoragePaths computes the shared/isolated/run paths for a step
// execution (spec §4.2).
func ResolveStoragePaths(cfg StorageConfig, step Step, flowID, runID string) StoragePaths {
	p := StoragePaths{
		SharedPath:   disabledPath,
		IsolatedPath: disabledPath,
		RunPath:      filepath.Join(cfg.Root, cfg.RunsFolder, Sanitize(runID), Sanitize(step.ID)),
	}
	if cfg.Enabled && step.EnableSharedStorage {
		p.SharedPath = filepath.Join(cfg.Root, cfg.SharedFolder, Sanitize(flowID))
	}
	if cfg.Enabled && step.EnableIsolatedStorage {
		p.IsolatedPath = filepath.Join(cfg.Root, cfg.IsolatedFolder, Sanitize(flowID), Sanitize(step.ID))
	}
	return p
}

// EnsureDirs idempotently creates every non-disabled root in p.
func (p StoragePaths) EnsureDirs() error {
	for _, dir := range []string{p.SharedPath, p.IsolatedPath, p.RunPath} {
		if dir == disabledPath || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

var storageTemplateToken = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// RenderPathTemplate substitutes {{shared_storage_path}},
// {{isolated_storage_path}}, {{run_storage_path}}, and free-form
// {{input_key}} tokens drawn from runInputs. A relative result resolves
// against p.RunPath; an absolute template passes through unchanged
// (spec §4.2).
func RenderPathTemplate(template string, p StoragePaths, runInputs map[string]string) string {
	rendered := storageTemplateToken.ReplaceAllStringFunc(template, func(tok string) string {
		key := strings.TrimSpace(tok[2 : len(tok)-2])
		switch key {
		case "shared_storage_path":
			return p.SharedPath
		case "isolated_storage_path":
			return p.IsolatedPath
		case "run_storage_path":
			return p.RunPath
		default:
			if v, ok := runInputs[key]; ok {
				return v
			}
			return ""
		}
	})
	if filepath.IsAbs(rendered) {
		return rendered
	}
	return filepath.Join(p.RunPath, rendered)
}
