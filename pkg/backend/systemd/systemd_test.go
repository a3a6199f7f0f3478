package systemd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/types"
)

type fakeRunner struct {
	calls  [][]string
	output map[string]string
	err    error
}

func (r *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if r.err != nil {
		return nil, r.err
	}
	if out, ok := r.output[strings.Join(call, " ")]; ok {
		return []byte(out), nil
	}
	return nil, nil
}

func (r *fakeRunner) Stream(_ context.Context, name string, args ...string) (io.ReadCloser, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if out, ok := r.output[strings.Join(call, " ")]; ok {
		return io.NopCloser(strings.NewReader(out)), nil
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func newTestManager(t *testing.T, runner backend.Runner) *Manager {
	t.Helper()
	return New(Config{
		UnitDir:  t.TempDir(),
		UserMode: true,
		Runner:   runner,
	})
}

func webInstance(idx int) types.ServiceInstance {
	return types.ServiceInstance{
		Source:     "shop",
		Service:    "web",
		Index:      idx,
		Replicated: true,
		Command:    "/opt/app/bin/webd --bind localhost:8080 --workers 2",
		Environment: map[string]string{
			"APP_CONFIG_FILE": "/opt/app/config/herd.yml",
		},
		Bind: "localhost:8080",
	}
}

func TestInstallAndListRoundTrip(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	inst := webInstance(0)

	require.NoError(t, m.Install(inst))

	units, err := m.ListInstalled()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "shop-web@0", units[0].UnitName)
	assert.Equal(t, inst.Fingerprint(), units[0].Fingerprint)
}

func TestInstallIsIdempotent(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	inst := webInstance(0)

	require.NoError(t, m.Install(inst))
	path := m.unitFile(inst.UnitName())
	first, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, m.Install(inst))
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime(), "unchanged unit should not be rewritten")
}

func TestListIgnoresForeignUnits(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	require.NoError(t, os.WriteFile(filepath.Join(m.unitDir, "nginx.service"), []byte("[Unit]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.unitDir, "herd-notes.txt"), []byte("x"), 0o644))

	units, err := m.ListInstalled()
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestRemoveStopsThenDeletes(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)
	inst := webInstance(0)
	require.NoError(t, m.Install(inst))

	require.NoError(t, m.Remove(inst.UnitName()))

	_, err := os.Stat(m.unitFile(inst.UnitName()))
	assert.True(t, os.IsNotExist(err))
	require.NotEmpty(t, runner.calls)
	assert.Contains(t, runner.calls[0], "stop")
}

func TestRemoveMissingUnitIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)

	require.NoError(t, m.Remove("shop-web@7"))
	assert.Empty(t, runner.calls, "no systemctl calls for a unit that was never installed")
}

func TestApplyRunsDaemonReload(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)

	require.NoError(t, m.Apply())
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"systemctl", "--user", "daemon-reload"}, runner.calls[0])
}

func TestGroupNameFansOutToReplicas(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(webInstance(0)))
	require.NoError(t, m.Install(webInstance(1)))

	targets := m.targets("shop-web")
	assert.Equal(t, []string{"herd-shop-web@0.service", "herd-shop-web@1.service"}, targets)
}

func TestExactUnitNameIsNotExpanded(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(webInstance(0)))
	require.NoError(t, m.Install(webInstance(1)))

	targets := m.targets("shop-web@1")
	assert.Equal(t, []string{"herd-shop-web@1.service"}, targets)
}

func TestStatusParsesIsActiveOutput(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{}}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(webInstance(0)))
	require.NoError(t, m.Install(webInstance(1)))
	runner.output["systemctl --user is-active herd-shop-web@0.service herd-shop-web@1.service"] = "active\nfailed\n"

	statuses, err := m.Status(context.Background(), []string{"shop-web"})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, types.RunStateRunning, statuses[0].State)
	assert.Equal(t, types.RunStateFailed, statuses[1].State)
	assert.Equal(t, "shop-web@1", statuses[1].UnitName)
}

func TestFollowLogsAttributesLinesToUnits(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{}}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(webInstance(0)))
	require.NoError(t, m.Install(webInstance(1)))
	runner.output["journalctl --user -f --no-pager -u herd-shop-web@0.service"] = "booting\nready\n"
	runner.output["journalctl --user -f --no-pager -u herd-shop-web@1.service"] = "starting workers\n"

	lines, err := m.FollowLogs(context.Background(), []string{"shop-web"})
	require.NoError(t, err)

	byUnit := make(map[string][]string)
	for line := range lines {
		byUnit[line.Unit] = append(byUnit[line.Unit], line.Line)
	}
	assert.Equal(t, []string{"booting", "ready"}, byUnit["shop-web@0"])
	assert.Equal(t, []string{"starting workers"}, byUnit["shop-web@1"])
}

func TestRenderUnitContainsCommandAndEnv(t *testing.T) {
	inst := webInstance(0)
	inst.Umask = "027"
	inst.WorkingDir = "/opt/app"

	contents, err := renderUnit(inst, true)
	require.NoError(t, err)

	assert.Contains(t, contents, "ExecStart=/opt/app/bin/webd --bind localhost:8080 --workers 2")
	assert.Contains(t, contents, "Environment=APP_CONFIG_FILE=/opt/app/config/herd.yml")
	assert.Contains(t, contents, "UMask=027")
	assert.Contains(t, contents, "WorkingDirectory=/opt/app")
	assert.Contains(t, contents, "WantedBy=default.target")
	assert.Contains(t, contents, "# Fingerprint: "+inst.Fingerprint())
}

func TestRenderUnitQuotesEnvWithSpaces(t *testing.T) {
	inst := webInstance(0)
	inst.Environment = map[string]string{"FLAGS": "--a --b"}

	contents, err := renderUnit(inst, false)
	require.NoError(t, err)
	assert.Contains(t, contents, `Environment=FLAGS="--a --b"`)
	assert.Contains(t, contents, "WantedBy=multi-user.target")
}
