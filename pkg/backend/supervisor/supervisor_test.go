package supervisor

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
	r.calls = append(r.calls, append([]string{name}, args...))
	return io.NopCloser(strings.NewReader("")), nil
}

func newTestManager(t *testing.T, runner backend.Runner) *Manager {
	t.Helper()
	base := t.TempDir()
	return New(Config{
		ConfDir:    filepath.Join(base, "conf.d"),
		ConfigFile: filepath.Join(base, "supervisord.conf"),
		LogDir:     filepath.Join(base, "log"),
		Runner:     runner,
	})
}

func workerInstance() types.ServiceInstance {
	return types.ServiceInstance{
		Source:  "shop",
		Service: "worker",
		Command: "/opt/app/bin/taskd worker --concurrency 4",
		Environment: map[string]string{
			"APP_CONFIG_FILE": "/opt/app/config/herd.yml",
		},
	}
}

func webInstance(idx int) types.ServiceInstance {
	return types.ServiceInstance{
		Source:     "shop",
		Service:    "web",
		Index:      idx,
		Replicated: true,
		Command:    "/opt/app/bin/webd --bind localhost:8080",
		Bind:       "localhost:8080",
	}
}

func TestInstallBootstrapsSupervisordConf(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	require.NoError(t, m.Install(workerInstance()))

	data, err := os.ReadFile(m.configFile)
	require.NoError(t, err)
	contents := string(data)
	assert.Contains(t, contents, "[unix_http_server]")
	assert.Contains(t, contents, "files = "+filepath.Join(m.confDir, "*.conf"))
	assert.Contains(t, contents, "serverurl=unix://")
}

func TestApplyBootstrapsSupervisordConf(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	require.NoError(t, m.Apply())

	_, err := os.Stat(m.configFile)
	require.NoError(t, err)
}

func TestBootstrapKeepsExistingSupervisordConf(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	custom := "; operator managed\n[supervisord]\n"
	require.NoError(t, os.MkdirAll(filepath.Dir(m.configFile), 0o755))
	require.NoError(t, os.WriteFile(m.configFile, []byte(custom), 0o644))

	require.NoError(t, m.Install(workerInstance()))

	data, err := os.ReadFile(m.configFile)
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestInstallAndListRoundTrip(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	inst := workerInstance()

	require.NoError(t, m.Install(inst))

	units, err := m.ListInstalled()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "shop-worker", units[0].UnitName)
	assert.Equal(t, inst.Fingerprint(), units[0].Fingerprint)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	require.NoError(t, os.MkdirAll(m.confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(m.confDir, "redis.conf"), []byte("[program:redis]\n"), 0o644))

	units, err := m.ListInstalled()
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestRemoveDeletesWithoutStopping(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)
	inst := workerInstance()
	require.NoError(t, m.Install(inst))

	require.NoError(t, m.Remove(inst.UnitName()))

	_, err := os.Stat(m.confFile(inst.UnitName()))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, runner.calls, "removal is committed by the next update, not by supervisorctl stop")
}

func TestApplyRunsUpdate(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)

	require.NoError(t, m.Apply())
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "supervisorctl", runner.calls[0][0])
	assert.Equal(t, "update", runner.calls[0][len(runner.calls[0])-1])
	assert.Contains(t, runner.calls[0], "-c")
}

func TestGroupNameFansOutToReplicas(t *testing.T) {
	m := newTestManager(t, &fakeRunner{})
	require.NoError(t, m.Install(webInstance(0)))
	require.NoError(t, m.Install(webInstance(1)))

	programs, labels := m.programArgs("shop-web")
	assert.Equal(t, []string{"herd-shop-web_0", "herd-shop-web_1"}, programs)
	assert.Equal(t, []string{"shop-web@0", "shop-web@1"}, labels)
}

func TestSignalStripsSigPrefix(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(workerInstance()))

	require.NoError(t, m.Signal(context.Background(), "shop-worker", "SIGHUP"))
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "HUP")
	assert.NotContains(t, runner.calls[0], "SIGHUP")
}

func TestParseStatusOutput(t *testing.T) {
	out := []byte(strings.Join([]string{
		"herd-shop-web_0                  RUNNING   pid 4242, uptime 0:03:12",
		"herd-shop-web_1                  STARTING",
		"herd-shop-worker                 FATAL     Exited too quickly",
		"herd-shop-scheduler              STOPPED   Aug 24 10:01 AM",
	}, "\n"))

	parsed := parseStatusOutput(out)
	require.Len(t, parsed, 4)
	assert.Equal(t, types.RunStateRunning, parsed["herd-shop-web_0"].State)
	assert.Equal(t, 4242, parsed["herd-shop-web_0"].PID)
	assert.Equal(t, types.RunStateRunning, parsed["herd-shop-web_1"].State)
	assert.Equal(t, types.RunStateFailed, parsed["herd-shop-worker"].State)
	assert.Equal(t, types.RunStateStopped, parsed["herd-shop-scheduler"].State)
}

func TestParseStatusOutputGrouped(t *testing.T) {
	out := []byte("web:herd-shop-web_0   RUNNING   pid 7, uptime 0:00:01\n")
	parsed := parseStatusOutput(out)
	assert.Equal(t, types.RunStateRunning, parsed["herd-shop-web_0"].State)
}

func TestStatusMapsProgramsBackToUnits(t *testing.T) {
	runner := &fakeRunner{output: map[string]string{}}
	m := newTestManager(t, runner)
	require.NoError(t, m.Install(webInstance(0)))

	key := strings.Join([]string{
		"supervisorctl", "-c", m.configFile, "status", "herd-shop-web_0",
	}, " ")
	runner.output[key] = "herd-shop-web_0   RUNNING   pid 11, uptime 0:00:05\n"

	statuses, err := m.Status(context.Background(), []string{"shop-web@0"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "shop-web@0", statuses[0].UnitName)
	assert.Equal(t, types.RunStateRunning, statuses[0].State)
	assert.Equal(t, 11, statuses[0].PID)
}

func TestRenderProgramContents(t *testing.T) {
	inst := workerInstance()
	inst.WorkingDir = "/opt/app"
	inst.Umask = "027"
	inst.Environment["PCT"] = "50%"

	contents, err := renderProgram(inst, "/var/log/shop-worker.log")
	require.NoError(t, err)

	assert.Contains(t, contents, "[program:herd-shop-worker]")
	assert.Contains(t, contents, "command=/opt/app/bin/taskd worker --concurrency 4")
	assert.Contains(t, contents, "directory=/opt/app")
	assert.Contains(t, contents, "umask=027")
	assert.Contains(t, contents, "stdout_logfile=/var/log/shop-worker.log")
	assert.Contains(t, contents, `PCT="50%%"`)
	assert.Contains(t, contents, "; Fingerprint: "+inst.Fingerprint())
}
