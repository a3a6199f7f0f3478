package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herdctl/pkg/types"
)

func webDefinition(binds ...string) types.ServiceDefinition {
	replicas := make([]types.ReplicaSettings, len(binds))
	for i, b := range binds {
		replicas[i] = types.ReplicaSettings{Bind: b}
	}
	return types.ServiceDefinition{
		Name:            "web",
		Enabled:         true,
		Replicable:      true,
		CommandTemplate: "webd --bind {bind} --workers 2 {extra_args}",
		Environment:     map[string]string{"APP_CONFIG_FILE": "/srv/app/config/herd.yml"},
		WorkingDir:      "/srv/app",
		Graceful:        types.GracefulRolling,
		RestartTimeout:  300 * time.Second,
		Replicas:        replicas,
	}
}

func TestExpandReplicaCount(t *testing.T) {
	def := webDefinition("localhost:8080", "localhost:8081", "localhost:8082")

	instances, err := Expand("main", def)
	require.NoError(t, err)
	assert.Len(t, instances, def.ReplicaCount())

	for i, inst := range instances {
		assert.Equal(t, i, inst.Index)
		assert.True(t, inst.Replicated)
		assert.Equal(t, def.Replicas[i].Bind, inst.Bind)
	}
}

func TestExpandIdempotent(t *testing.T) {
	def := webDefinition("localhost:8080", "localhost:8081")

	first, err := Expand("main", def)
	require.NoError(t, err)
	second, err := Expand("main", def)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	for i := range first {
		assert.Equal(t, first[i].Fingerprint(), second[i].Fingerprint())
	}
}

func TestExpandSingleReplicaUnindexed(t *testing.T) {
	def := webDefinition("localhost:8080")

	instances, err := Expand("main", def)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	assert.False(t, instances[0].Replicated)
	assert.Equal(t, "main-web", instances[0].UnitName())
}

func TestExpandReplicatedUnitNames(t *testing.T) {
	def := webDefinition("localhost:8080", "localhost:8081")

	instances, err := Expand("main", def)
	require.NoError(t, err)

	assert.Equal(t, "main-web@0", instances[0].UnitName())
	assert.Equal(t, "main-web@1", instances[1].UnitName())
	assert.Equal(t, "main-web", instances[0].GroupName())
}

func TestExpandNonReplicableRejected(t *testing.T) {
	def := types.ServiceDefinition{
		Name:            "worker",
		Enabled:         true,
		CommandTemplate: "taskd worker",
		Replicas:        []types.ReplicaSettings{{}, {}},
	}

	_, err := Expand("main", def)
	require.Error(t, err)

	var confErr *types.ConfigurationError
	assert.ErrorAs(t, err, &confErr)
}

func TestExpandCommandResolution(t *testing.T) {
	def := webDefinition("localhost:8080", "localhost:8081")
	def.Replicas[1].ExtraArgs = "--log-level debug"

	instances, err := Expand("main", def)
	require.NoError(t, err)

	assert.Equal(t, "webd --bind localhost:8080 --workers 2", instances[0].Command)
	assert.Equal(t, "webd --bind localhost:8081 --workers 2 --log-level debug", instances[1].Command)
}

func TestExpandNameTemplate(t *testing.T) {
	def := types.ServiceDefinition{
		Name:            "imports",
		Enabled:         true,
		Replicable:      true,
		CommandTemplate: "handlerd --name {name}",
		Replicas:        []types.ReplicaSettings{{}, {}},
	}

	instances, err := Expand("main", def)
	require.NoError(t, err)
	assert.Equal(t, "handlerd --name imports_0", instances[0].Command)
	assert.Equal(t, "handlerd --name imports_1", instances[1].Command)

	def.NameTemplate = "{name}.{process}"
	instances, err = Expand("main", def)
	require.NoError(t, err)
	assert.Equal(t, "handlerd --name imports.1", instances[1].Command)
}

func TestExpandFingerprintChangesWithBind(t *testing.T) {
	a := webDefinition("localhost:8080")
	b := webDefinition("localhost:9090")

	ia, err := Expand("main", a)
	require.NoError(t, err)
	ib, err := Expand("main", b)
	require.NoError(t, err)

	assert.NotEqual(t, ia[0].Fingerprint(), ib[0].Fingerprint())
}

func TestExpandAllDuplicateNames(t *testing.T) {
	defs := []types.ServiceDefinition{
		webDefinition("localhost:8080"),
		webDefinition("localhost:8081"),
	}

	_, err := ExpandAll("main", defs)
	require.Error(t, err)

	var confErr *types.ConfigurationError
	assert.ErrorAs(t, err, &confErr)
	assert.Contains(t, err.Error(), "duplicate service name")
}

func TestExpandAllSkipsDisabled(t *testing.T) {
	def := webDefinition("localhost:8080")
	def.Enabled = false

	instances, err := ExpandAll("main", []types.ServiceDefinition{def})
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestExpandEnvironmentMerge(t *testing.T) {
	def := webDefinition("localhost:8080")
	def.Replicas[0].Environment = map[string]string{"WEB_WORKER_ID": "0"}

	instances, err := Expand("main", def)
	require.NoError(t, err)

	env := instances[0].Environment
	assert.Equal(t, "/srv/app/config/herd.yml", env["APP_CONFIG_FILE"])
	assert.Equal(t, "0", env["WEB_WORKER_ID"])
}
