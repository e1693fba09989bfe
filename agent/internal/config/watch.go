package config

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// Reload describes one applied hot reload: the fresh config plus the
// parts of it the agent can act on without a restart.
type Reload struct {
	Old *Config
	New *Config

	// Zone pins that appeared or disappeared relative to Old.
	ZonesAdded   []string
	ZonesRemoved []string

	// DebugChanged is set when the log level flag flipped.
	DebugChanged bool
}

// Watch monitors path and calls apply for each rewrite of the config
// file that loads, validates, and actually differs from the previous
// one. It runs until ctx is cancelled.
//
// A reload that fails to load keeps the previous config and does not
// call apply. Fields that cannot take effect without a restart
// (master_url, zone_event_command, event_buffer) are logged when they
// change so an operator knows the running process still uses the old
// values.
func Watch(ctx context.Context, path string, initial *Config, apply func(Reload)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)
	last := initial

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create as well
			// as Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			fresh, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			if reflect.DeepEqual(fresh, last) {
				slog.Debug("config: file rewritten without changes", "path", path)
				continue
			}

			rel := Reload{
				Old:          last,
				New:          fresh,
				DebugChanged: fresh.Debug != last.Debug,
			}
			rel.ZonesAdded, rel.ZonesRemoved = diffZones(last.Zones, fresh.Zones)
			warnRestartOnly(last, fresh)

			slog.Info("config: reloaded", "path", path,
				"zones_added", len(rel.ZonesAdded), "zones_removed", len(rel.ZonesRemoved))
			apply(rel)
			last = fresh

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// diffZones reports which pinned zones appeared in fresh and which
// from last are gone.
func diffZones(last, fresh []string) (added, removed []string) {
	old := make(map[string]bool, len(last))
	for _, z := range last {
		old[z] = true
	}
	seen := make(map[string]bool, len(fresh))
	for _, z := range fresh {
		seen[z] = true
		if !old[z] {
			added = append(added, z)
		}
	}
	for _, z := range last {
		if !seen[z] {
			removed = append(removed, z)
		}
	}
	return added, removed
}

func warnRestartOnly(last, fresh *Config) {
	if fresh.MasterURL != last.MasterURL {
		slog.Warn("config: master_url changed, restart required to take effect",
			"running", last.MasterURL, "file", fresh.MasterURL)
	}
	if fresh.ZoneEventCommand != last.ZoneEventCommand {
		slog.Warn("config: zone_event_command changed, restart required to take effect")
	}
	if fresh.EventBuffer != last.EventBuffer {
		slog.Warn("config: event_buffer changed, restart required to take effect")
	}
	if fresh.PollInterval != last.PollInterval {
		slog.Warn("config: poll_interval changed, restart required to take effect")
	}
}
