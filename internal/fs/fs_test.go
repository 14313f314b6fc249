package fs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trly/pei-docker/internal/log"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewServiceWithFs(afero.NewMemMapFs(), log.Nop())
}

func TestHasChanged(t *testing.T) {
	svc := newService(t)
	require.NoError(t, afero.WriteFile(svc.Fs(), "/p/a.sh", []byte("echo a\n"), 0o755))

	tests := []struct {
		name    string
		path    string
		content string
		want    bool
	}{
		{name: "missing file", path: "/p/none.sh", content: "x", want: true},
		{name: "same content", path: "/p/a.sh", content: "echo a\n", want: false},
		{name: "different content", path: "/p/a.sh", content: "echo b\n", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.HasChanged(tt.path, []byte(tt.content)))
		})
	}
}

func TestWriteFile(t *testing.T) {
	svc := newService(t)
	path := "/proj/installation/stage-1/generated/_custom-on-build.sh"

	changed, err := svc.WriteFile(path, []byte("#!/bin/bash\n"), 0o755)
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := afero.ReadFile(svc.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\n", string(data))

	info, err := svc.Fs().Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 0o755, int(info.Mode().Perm()))

	changed, err = svc.WriteFile(path, []byte("#!/bin/bash\n"), 0o755)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.WriteFile(path, []byte("#!/bin/sh\n"), 0o755)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestWriteFile_FixesMode(t *testing.T) {
	svc := newService(t)
	path := "/proj/key"
	require.NoError(t, afero.WriteFile(svc.Fs(), path, []byte("secret\n"), 0o644))

	changed, err := svc.WriteFile(path, []byte("secret\n"), 0o600)
	require.NoError(t, err)
	assert.False(t, changed)

	info, err := svc.Fs().Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 0o600, int(info.Mode().Perm()))
}

func TestExists(t *testing.T) {
	svc := newService(t)
	require.NoError(t, afero.WriteFile(svc.Fs(), "/a", nil, 0o644))

	ok, err := svc.Exists("/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists("/b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadFile(t *testing.T) {
	svc := newService(t)
	_, err := svc.WriteFile("/p/key", []byte("k"), 0o600)
	require.NoError(t, err)

	data, err := svc.ReadFile("/p/key")
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))

	_, err = svc.ReadFile("/p/none")
	assert.Error(t, err)
}

func TestGetContentHash(t *testing.T) {
	assert.Equal(t, GetContentHash([]byte("x")), GetContentHash([]byte("x")))
	assert.NotEqual(t, GetContentHash([]byte("x")), GetContentHash([]byte("y")))
	assert.Len(t, GetContentHash(nil), 20)
}
