// Package storage maps a stage's storage and mount entries onto compose
// service volumes and top-level volume registrations.
package storage

import (
	"fmt"
	"path"
	"reflect"
	"sort"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/userconfig"
)

// HardVolumeRoot is where the fixed storage keys are mounted in the container.
const HardVolumeRoot = "/hard/volume"

// MountVolumePrefix namespaces compose volumes created for mount entries so
// they never collide with the fixed storage keys.
const MountVolumePrefix = "mount_"

// Entry is one resolved storage or mount entry.
type Entry struct {
	// Field locates the entry in the user config, e.g. "stage_2.mount.cache".
	Field string
	// Volume is the compose volume name, empty for host and image entries.
	Volume string
	// Definition is the top-level compose volume definition, nil when no
	// volume is registered.
	Definition map[string]any
	// Mapping is the service volume string, empty for image entries.
	Mapping string
	// Destination is the in-container path.
	Destination string
}

// Result is everything a stage contributes to the compose document.
type Result struct {
	Entries  []Entry
	Warnings []string
}

// ServiceVolumes returns the service-level volume strings, in entry order.
func (r Result) ServiceVolumes() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Mapping != "" {
			out = append(out, e.Mapping)
		}
	}
	return out
}

// Volumes returns the top-level compose volume registrations.
func (r Result) Volumes() map[string]any {
	out := make(map[string]any)
	for _, e := range r.Entries {
		if e.Definition != nil {
			out[e.Volume] = e.Definition
		}
	}
	return out
}

// StorageDestination is the in-container path of a fixed storage key.
func StorageDestination(key string) string {
	return path.Join(HardVolumeRoot, key)
}

// Resolve resolves a stage's storage entries (fixed keys, in their fixed
// order) followed by its mount entries (sorted by name). Two entries with the
// same destination are reported as a warning, not an error.
func Resolve(st userconfig.Stage) (Result, error) {
	var res Result
	cfg := st.Config

	for _, key := range userconfig.FixedStorageKeys {
		opt, ok := cfg.Storage[key]
		if !ok {
			continue
		}
		field := st.Key + ".storage." + key
		if err := opt.Validate(field, false); err != nil {
			return Result{}, err
		}
		res.add(resolveEntry(field, key, StorageDestination(key), opt))
	}
	if len(res.Entries) != len(cfg.Storage) {
		return Result{}, fmt.Errorf("%s.storage: keys are limited to %v", st.Key, userconfig.FixedStorageKeys)
	}

	mountKeys := make([]string, 0, len(cfg.Mount))
	for key := range cfg.Mount {
		mountKeys = append(mountKeys, key)
	}
	sort.Strings(mountKeys)
	for _, key := range mountKeys {
		opt := cfg.Mount[key]
		field := st.Key + ".mount." + key
		if err := opt.Validate(field, true); err != nil {
			return Result{}, err
		}
		res.add(resolveEntry(field, MountVolumePrefix+key, path.Clean(opt.DstPath), opt))
	}

	res.Warnings = duplicateDestinations(res.Entries)
	return res, nil
}

func resolveEntry(field, volume, dst string, opt userconfig.StorageOption) Entry {
	e := Entry{Field: field, Destination: dst}
	switch opt.Type {
	case userconfig.StorageAutoVolume:
		e.Volume = volume
		e.Definition = map[string]any{}
		e.Mapping = volume + ":" + dst
	case userconfig.StorageManualVolume:
		e.Volume = volume
		e.Definition = map[string]any{"external": true, "name": opt.VolumeName}
		e.Mapping = volume + ":" + dst
	case userconfig.StorageHost:
		e.Mapping = opt.HostPath + ":" + dst
	case userconfig.StorageImage:
	}
	return e
}

func (r *Result) add(e Entry) {
	r.Entries = append(r.Entries, e)
}

func duplicateDestinations(entries []Entry) []string {
	var warnings []string
	seen := make(map[string]string)
	for _, e := range entries {
		if e.Mapping == "" {
			continue
		}
		if first, dup := seen[e.Destination]; dup {
			warnings = append(warnings, fmt.Sprintf("%s and %s both mount at %s, the later one shadows the earlier",
				first, e.Field, e.Destination))
			continue
		}
		seen[e.Destination] = e.Field
	}
	return warnings
}

// Registry collects top-level volume registrations across stages. Stages may
// share a volume name only when they define it identically.
type Registry struct {
	owners map[string]Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]Entry)}
}

// Register records the volumes of res. A volume already registered by an
// earlier entry with a different definition is a schema error located at the
// later entry.
func (r *Registry) Register(res Result) error {
	for _, e := range res.Entries {
		if e.Definition == nil {
			continue
		}
		if first, ok := r.owners[e.Volume]; ok {
			if !reflect.DeepEqual(first.Definition, e.Definition) {
				return cfgerr.Schema(cfgerr.ErrDuplicateKey, e.Field, e.Volume,
					"volume is already defined differently by "+first.Field)
			}
			continue
		}
		r.owners[e.Volume] = e
	}
	return nil
}
