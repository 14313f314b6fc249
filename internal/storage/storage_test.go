package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/cfgerr"
	"github.com/trly/pei-docker/internal/userconfig"
)

func stage2(storage, mount map[string]userconfig.StorageOption) userconfig.Stage {
	return userconfig.Stage{
		Key:   userconfig.Stage2Key,
		Index: 2,
		Config: &userconfig.StageConfig{
			Storage: storage,
			Mount:   mount,
		},
	}
}

func stage1(mount map[string]userconfig.StorageOption) userconfig.Stage {
	return userconfig.Stage{
		Key:    userconfig.Stage1Key,
		Index:  1,
		Config: &userconfig.StageConfig{Mount: mount},
	}
}

func TestResolve_Types(t *testing.T) {
	tests := []struct {
		name     string
		opt      userconfig.StorageOption
		volumes  map[string]any
		mappings []string
	}{
		{
			name:     "auto volume",
			opt:      userconfig.StorageOption{Type: userconfig.StorageAutoVolume},
			volumes:  map[string]any{"app": map[string]any{}},
			mappings: []string{"app:/hard/volume/app"},
		},
		{
			name:     "manual volume",
			opt:      userconfig.StorageOption{Type: userconfig.StorageManualVolume, VolumeName: "shared-app"},
			volumes:  map[string]any{"app": map[string]any{"external": true, "name": "shared-app"}},
			mappings: []string{"app:/hard/volume/app"},
		},
		{
			name:     "host",
			opt:      userconfig.StorageOption{Type: userconfig.StorageHost, HostPath: "/srv/app"},
			volumes:  map[string]any{},
			mappings: []string{"/srv/app:/hard/volume/app"},
		},
		{
			name:     "image",
			opt:      userconfig.StorageOption{Type: userconfig.StorageImage},
			volumes:  map[string]any{},
			mappings: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(stage2(map[string]userconfig.StorageOption{"app": tt.opt}, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.volumes, res.Volumes())
			assert.Equal(t, tt.mappings, res.ServiceVolumes())
			assert.Empty(t, res.Warnings)
		})
	}
}

func TestResolve_StorageAndMountDoNotCollide(t *testing.T) {
	res, err := Resolve(stage2(
		map[string]userconfig.StorageOption{"data": {Type: userconfig.StorageAutoVolume}},
		map[string]userconfig.StorageOption{"data": {Type: userconfig.StorageAutoVolume, DstPath: "/custom/data"}},
	))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"data":       map[string]any{},
		"mount_data": map[string]any{},
	}, res.Volumes())
	assert.Equal(t, []string{"data:/hard/volume/data", "mount_data:/custom/data"}, res.ServiceVolumes())
	assert.Empty(t, res.Warnings)
}

func TestResolve_Order(t *testing.T) {
	res, err := Resolve(stage2(
		map[string]userconfig.StorageOption{
			"workspace": {Type: userconfig.StorageAutoVolume},
			"app":       {Type: userconfig.StorageAutoVolume},
			"data":      {Type: userconfig.StorageHost, HostPath: "/srv/data"},
		},
		map[string]userconfig.StorageOption{
			"zeta":  {Type: userconfig.StorageHost, HostPath: "/z", DstPath: "/z"},
			"alpha": {Type: userconfig.StorageHost, HostPath: "/a", DstPath: "/a/"},
		},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app:/hard/volume/app",
		"/srv/data:/hard/volume/data",
		"workspace:/hard/volume/workspace",
		"/a:/a",
		"/z:/z",
	}, res.ServiceVolumes())
}

func TestResolve_DuplicateDestinationWarns(t *testing.T) {
	res, err := Resolve(stage2(
		map[string]userconfig.StorageOption{"data": {Type: userconfig.StorageAutoVolume}},
		map[string]userconfig.StorageOption{"shadow": {Type: userconfig.StorageHost, HostPath: "/srv/x", DstPath: "/hard/volume/data/"}},
	))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "stage_2.storage.data")
	assert.Contains(t, res.Warnings[0], "stage_2.mount.shadow")
	assert.Len(t, res.ServiceVolumes(), 2)
}

func TestResolve_ImageEntriesNeverWarn(t *testing.T) {
	res, err := Resolve(stage2(nil, map[string]userconfig.StorageOption{
		"a": {Type: userconfig.StorageImage, DstPath: "/x"},
		"b": {Type: userconfig.StorageImage, DstPath: "/x"},
	}))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.ServiceVolumes())
}

func TestResolve_Invalid(t *testing.T) {
	_, err := Resolve(stage2(map[string]userconfig.StorageOption{"models": {Type: userconfig.StorageAutoVolume}}, nil))
	assert.Error(t, err)

	_, err = Resolve(stage2(nil, map[string]userconfig.StorageOption{"m": {Type: userconfig.StorageHost, DstPath: "/m"}}))
	assert.Error(t, err)
}

func TestResolve_Empty(t *testing.T) {
	res, err := Resolve(stage2(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, map[string]any{}, res.Volumes())
	assert.Equal(t, []string{}, res.ServiceVolumes())
}

func TestRegistry_SameDefinitionShared(t *testing.T) {
	reg := NewRegistry()
	mount := map[string]userconfig.StorageOption{
		"cache": {Type: userconfig.StorageAutoVolume, DstPath: "/cache"},
	}

	first, err := Resolve(stage1(mount))
	require.NoError(t, err)
	second, err := Resolve(stage2(nil, mount))
	require.NoError(t, err)

	require.NoError(t, reg.Register(first))
	assert.NoError(t, reg.Register(second))
}

func TestRegistry_ConflictingDefinitionRejected(t *testing.T) {
	reg := NewRegistry()

	first, err := Resolve(stage1(map[string]userconfig.StorageOption{
		"cache": {Type: userconfig.StorageAutoVolume, DstPath: "/cache"},
	}))
	require.NoError(t, err)
	second, err := Resolve(stage2(nil, map[string]userconfig.StorageOption{
		"cache": {Type: userconfig.StorageManualVolume, VolumeName: "shared", DstPath: "/cache"},
	}))
	require.NoError(t, err)

	require.NoError(t, reg.Register(first))
	err = reg.Register(second)
	require.Error(t, err)
	assert.True(t, cfgerr.IsSchemaValidation(err))

	issues := cfgerr.Collect(err)
	require.Len(t, issues, 1)
	assert.Equal(t, "stage_2.mount.cache", issues[0].Field)
	assert.Contains(t, issues[0].Message, "stage_1.mount.cache")
}
