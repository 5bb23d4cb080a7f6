package platform

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cardforge/cardforge/domain/event"
)

// ConfigSyncer syncs a per-project configuration bundle — a CLAUDE.md-
// equivalent prompt preamble, a set of skills, and coding-pattern hints —
// into a worktree's agent config directory before a session is started.
// Supplemented from original_source/src/integrations/config_sync.rs, which
// spec.md's distillation dropped entirely (SPEC_FULL.md §12): prompt
// assembly itself is out of scope, but landing the config bundle on disk
// ahead of spawning is an adapter-level filesystem concern, not prompt
// assembly, so it belongs in C5 rather than being excluded.
type ConfigSyncer struct {
	// Bundle maps destination file names (relative to the config dir) to
	// their contents. Skills are files with an "skill-" name prefix by
	// convention; everything else is a preamble/pattern document.
	Bundle map[string]string
}

// Sync writes the syncer's bundle into configDir (creating it if absent)
// and returns a ConfigSynced event describing what landed, for the caller
// to publish on the Event Bus.
func (c ConfigSyncer) Sync(ctx context.Context, cardID, configDir string) (event.Event, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return event.Event{}, err
	}

	var claudeMDSynced bool
	var skillsSynced int
	var patternsSynced bool

	for name, contents := range c.Bundle {
		dest := filepath.Join(configDir, name)
		if err := os.WriteFile(dest, []byte(contents), 0o644); err != nil {
			return event.Event{}, err
		}
		switch {
		case name == "CLAUDE.md":
			claudeMDSynced = true
		case len(name) > 6 && name[:6] == "skill-":
			skillsSynced++
		case name == "patterns.md":
			patternsSynced = true
		}
	}

	return event.NewConfigSynced(cardID, claudeMDSynced, skillsSynced, patternsSynced), nil
}
