package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herdctl/pkg/types"
)

func TestLoadRoutingSortedDescriptors(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "routing.yml"), `
handling:
  processes:
    webhooks_0:
    imports_0:
      environment:
        QUEUE: imports
    imports_1:
      environment:
        QUEUE: imports
`)

	descriptors, err := LoadRouting(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 3)
	assert.Equal(t, "imports_0", descriptors[0].Name)
	assert.Equal(t, "imports", descriptors[0].Environment["QUEUE"])
	assert.Equal(t, "imports_1", descriptors[1].Name)
	assert.Equal(t, "webhooks_0", descriptors[2].Name)
	assert.Nil(t, descriptors[2].Environment)
}

func TestLoadRoutingMissingFileIsNotAnError(t *testing.T) {
	descriptors, err := LoadRouting(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestLoadRoutingEmptyPath(t *testing.T) {
	descriptors, err := LoadRouting("")
	require.NoError(t, err)
	assert.Nil(t, descriptors)
}

func TestLoadRoutingMalformed(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "routing.yml"), "handling: [broken\n")
	_, err := LoadRouting(path)
	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
