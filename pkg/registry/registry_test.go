package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("herd: {}\n"), 0o644))
	return path
}

func openTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := Open([]string{dir})
	require.NoError(t, err)
	return r, dir
}

func TestFirstRegistrationGetsDefaultName(t *testing.T) {
	r, dir := openTestRegistry(t)
	cfg := writeConfig(t, dir, "herd.yml")

	src, err := r.Register(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultInstanceName, src.InstanceName)
	assert.Equal(t, cfg, src.Path)
}

func TestSecondAnonymousRegistrationGetsGeneratedName(t *testing.T) {
	r, dir := openTestRegistry(t)
	first := writeConfig(t, dir, "a.yml")
	second := writeConfig(t, dir, "b.yml")

	_, err := r.Register(first, "")
	require.NoError(t, err)

	src, err := r.Register(second, "")
	require.NoError(t, err)
	assert.NotEqual(t, DefaultInstanceName, src.InstanceName)
	assert.NotEmpty(t, src.InstanceName)
}

func TestReRegisterSamePathIsNoop(t *testing.T) {
	r, dir := openTestRegistry(t)
	cfg := writeConfig(t, dir, "herd.yml")

	first, err := r.Register(cfg, "shop")
	require.NoError(t, err)

	again, err := r.Register(cfg, "other")
	require.NoError(t, err)
	assert.Equal(t, first, again, "re-registration keeps the original name")

	sources, err := r.List()
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestDuplicateNameLeavesRegistryUnchanged(t *testing.T) {
	r, dir := openTestRegistry(t)
	first := writeConfig(t, dir, "a.yml")
	second := writeConfig(t, dir, "b.yml")

	_, err := r.Register(first, "shop")
	require.NoError(t, err)

	_, err = r.Register(second, "shop")
	var dup *DuplicateInstanceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "shop", dup.Name)
	assert.Equal(t, first, dup.ExistingPath)

	sources, err := r.List()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, first, sources[0].Path)
}

func TestDeregisterByNameAndPath(t *testing.T) {
	r, dir := openTestRegistry(t)
	a := writeConfig(t, dir, "a.yml")
	b := writeConfig(t, dir, "b.yml")
	_, err := r.Register(a, "alpha")
	require.NoError(t, err)
	_, err = r.Register(b, "beta")
	require.NoError(t, err)

	removed, err := r.Deregister("alpha")
	require.NoError(t, err)
	assert.Equal(t, a, removed.Path)

	removed, err = r.Deregister(b)
	require.NoError(t, err)
	assert.Equal(t, "beta", removed.InstanceName)

	sources, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestDeregisterUnknownFails(t *testing.T) {
	r, _ := openTestRegistry(t)
	_, err := r.Deregister("ghost")
	assert.Error(t, err)
}

func TestRegistrySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "herd.yml")

	r, err := Open([]string{dir})
	require.NoError(t, err)
	_, err = r.Register(cfg, "shop")
	require.NoError(t, err)

	reopened, err := Open([]string{t.TempDir(), dir})
	require.NoError(t, err)
	sources, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "shop", sources[0].InstanceName)
}

func TestLookup(t *testing.T) {
	r, dir := openTestRegistry(t)
	cfg := writeConfig(t, dir, "herd.yml")
	_, err := r.Register(cfg, "shop")
	require.NoError(t, err)

	src, ok, err := r.Lookup("shop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg, src.Path)

	_, ok, err = r.Lookup("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
