package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/log"
	"github.com/herdctl/herdctl/pkg/types"
)

const fingerprintHeader = "; Fingerprint: "

// Config configures the supervisor backend.
type Config struct {
	// ConfDir is the include directory supervisord reads program files from.
	ConfDir string

	// ConfigFile, when set, is passed to supervisorctl as -c so a non-default
	// supervisord instance can be driven.
	ConfigFile string

	// LogDir receives per-program stdout logs. Defaults to ConfDir/../log.
	LogDir string

	Runner backend.Runner
}

// Manager drives supervisord through program files and supervisorctl.
type Manager struct {
	confDir    string
	configFile string
	logDir     string
	runner     backend.Runner
	logger     zerolog.Logger
}

// New creates a supervisor adapter.
func New(cfg Config) *Manager {
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(filepath.Dir(cfg.ConfDir), "log")
	}
	runner := cfg.Runner
	if runner == nil {
		runner = backend.ExecRunner()
	}
	return &Manager{
		confDir:    cfg.ConfDir,
		configFile: cfg.ConfigFile,
		logDir:     logDir,
		runner:     runner,
		logger:     log.WithComponent("supervisor"),
	}
}

func (m *Manager) Kind() backend.Kind {
	return backend.KindSupervisor
}

func (m *Manager) confFile(unitName string) string {
	return filepath.Join(m.confDir, backend.UnitPrefix+unitName+".conf")
}

func (m *Manager) logFile(unitName string) string {
	return filepath.Join(m.logDir, unitName+".log")
}

func (m *Manager) supervisorctl(ctx context.Context, args ...string) ([]byte, error) {
	if m.configFile != "" {
		args = append([]string{"-c", m.configFile}, args...)
	}
	return m.runner.Output(ctx, "supervisorctl", args...)
}

// ListInstalled scans the include directory for herdctl-owned program files
// and recovers their fingerprints from the rendered header.
func (m *Manager) ListInstalled() ([]types.InstalledUnit, error) {
	entries, err := os.ReadDir(m.confDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &backend.UnavailableError{Kind: backend.KindSupervisor, Op: "list", Err: err}
	}

	var units []types.InstalledUnit
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, backend.UnitPrefix) || !strings.HasSuffix(name, ".conf") {
			continue
		}
		unitName := strings.TrimSuffix(strings.TrimPrefix(name, backend.UnitPrefix), ".conf")
		fp, err := readFingerprint(filepath.Join(m.confDir, name))
		if err != nil {
			m.logger.Warn().Err(err).Str("unit", unitName).Msg("unreadable program file, slating for rewrite")
		}
		units = append(units, types.InstalledUnit{
			UnitName:    unitName,
			Fingerprint: fp,
			Enabled:     true,
		})
	}
	return units, nil
}

func readFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, fingerprintHeader) {
			return strings.TrimSpace(strings.TrimPrefix(line, fingerprintHeader)), nil
		}
		if strings.HasPrefix(line, "[") {
			break
		}
	}
	return "", scanner.Err()
}

// Install renders and writes the program file for one instance. Supervisor
// does not see the file until Apply runs an update.
func (m *Manager) Install(inst types.ServiceInstance) error {
	if err := m.ensureSupervisordConf(); err != nil {
		return err
	}
	for _, dir := range []string{m.confDir, m.logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &backend.UnavailableError{Kind: backend.KindSupervisor, Op: "install", Err: err}
		}
	}
	contents, err := renderProgram(inst, m.logFile(inst.UnitName()))
	if err != nil {
		return err
	}
	_, err = backend.WriteUnitFile(m.confFile(inst.UnitName()), contents, inst.UnitName())
	return err
}

// Remove deletes a program file. Supervisor stops the program itself during
// the next update, so no explicit stop is issued here. A missing file is a
// no-op.
func (m *Manager) Remove(unitName string) error {
	path := m.confFile(unitName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	m.logger.Info().Str("unit", unitName).Msg("removing program file")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Apply commits staged program file changes with a single supervisorctl
// update, which starts added programs, stops removed ones and restarts
// changed ones.
func (m *Manager) Apply() error {
	if err := m.ensureSupervisordConf(); err != nil {
		return err
	}
	if out, err := m.supervisorctl(context.Background(), "update"); err != nil {
		return m.opError("update", out, err)
	}
	return nil
}

// targets resolves a unit name to concrete program names. A bare group name
// for a replicated service expands to every installed replica.
func (m *Manager) targets(unitName string) []string {
	if _, err := os.Stat(m.confFile(unitName)); err == nil {
		return []string{unitName}
	}
	matches, _ := filepath.Glob(m.confFile(unitName + "@*"))
	if len(matches) > 0 {
		targets := make([]string, len(matches))
		for i, match := range matches {
			targets[i] = strings.TrimSuffix(strings.TrimPrefix(filepath.Base(match), backend.UnitPrefix), ".conf")
		}
		return targets
	}
	return []string{unitName}
}

func (m *Manager) programArgs(unitNames ...string) (programs []string, labels []string) {
	for _, name := range unitNames {
		for _, t := range m.targets(name) {
			programs = append(programs, programName(t))
			labels = append(labels, t)
		}
	}
	return programs, labels
}

func (m *Manager) Start(ctx context.Context, unitName string) (types.UnitStatus, error) {
	programs, _ := m.programArgs(unitName)
	out, err := m.supervisorctl(ctx, append([]string{"start"}, programs...)...)
	// update autostarts new programs, so a follow-up start may find them
	// running already.
	if err != nil && !strings.Contains(string(out), "already started") {
		return types.UnitStatus{}, m.opError("start", out, err)
	}
	return m.statusOne(ctx, unitName)
}

func (m *Manager) Stop(ctx context.Context, unitName string) (types.UnitStatus, error) {
	programs, _ := m.programArgs(unitName)
	out, err := m.supervisorctl(ctx, append([]string{"stop"}, programs...)...)
	if err != nil && !isMissingProgram(out) {
		return types.UnitStatus{}, m.opError("stop", out, err)
	}
	return types.UnitStatus{UnitName: unitName, State: types.RunStateStopped}, nil
}

func (m *Manager) Restart(ctx context.Context, unitName string) (types.UnitStatus, error) {
	programs, _ := m.programArgs(unitName)
	if out, err := m.supervisorctl(ctx, append([]string{"restart"}, programs...)...); err != nil {
		return types.UnitStatus{}, m.opError("restart", out, err)
	}
	return m.statusOne(ctx, unitName)
}

// Signal delivers a signal to the program's process for in-place reloads.
func (m *Manager) Signal(ctx context.Context, unitName string, signal string) error {
	signal = strings.TrimPrefix(signal, "SIG")
	programs, _ := m.programArgs(unitName)
	args := append([]string{"signal", signal}, programs...)
	if out, err := m.supervisorctl(ctx, args...); err != nil && !isMissingProgram(out) {
		return m.opError("signal", out, err)
	}
	return nil
}

func (m *Manager) Status(ctx context.Context, unitNames []string) ([]types.UnitStatus, error) {
	programs, labels := m.programArgs(unitNames...)
	if len(programs) == 0 {
		return nil, nil
	}

	// supervisorctl status exits non-zero when any program is not RUNNING;
	// the output is still one status line per program.
	out, _ := m.supervisorctl(ctx, append([]string{"status"}, programs...)...)
	byProgram := parseStatusOutput(out)

	statuses := make([]types.UnitStatus, 0, len(labels))
	for i, label := range labels {
		status := types.UnitStatus{UnitName: label, State: types.RunStateUnknown}
		if parsed, ok := byProgram[programs[i]]; ok {
			status.State = parsed.State
			status.PID = parsed.PID
			status.Detail = parsed.Detail
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

type parsedStatus struct {
	State  types.RunState
	PID    int
	Detail string
}

// parseStatusOutput parses supervisorctl status lines of the form
//
//	herd-shop-web_0   RUNNING   pid 4242, uptime 0:03:12
func parseStatusOutput(out []byte) map[string]parsedStatus {
	results := make(map[string]parsedStatus)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Grouped programs are reported as group:name.
		name := fields[0]
		if idx := strings.LastIndex(name, ":"); idx >= 0 {
			name = name[idx+1:]
		}

		parsed := parsedStatus{Detail: strings.Join(fields[1:], " ")}
		switch fields[1] {
		case "RUNNING":
			parsed.State = types.RunStateRunning
			if len(fields) >= 4 && fields[2] == "pid" {
				parsed.PID, _ = strconv.Atoi(strings.TrimSuffix(fields[3], ","))
			}
		case "STARTING":
			parsed.State = types.RunStateRunning
		case "STOPPED", "EXITED":
			parsed.State = types.RunStateStopped
		case "FATAL", "BACKOFF":
			parsed.State = types.RunStateFailed
		default:
			parsed.State = types.RunStateUnknown
		}
		results[name] = parsed
	}
	return results
}

func (m *Manager) statusOne(ctx context.Context, unitName string) (types.UnitStatus, error) {
	statuses, err := m.Status(ctx, []string{unitName})
	if err != nil || len(statuses) == 0 {
		return types.UnitStatus{UnitName: unitName, State: types.RunStateUnknown}, err
	}
	return statuses[0], nil
}

// FollowLogs tails the per-program stdout log files until ctx is cancelled.
func (m *Manager) FollowLogs(ctx context.Context, unitNames []string) (<-chan backend.LogLine, error) {
	files := make(map[string]string)
	for _, name := range unitNames {
		for _, t := range m.targets(name) {
			files[t] = m.logFile(t)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no units to follow")
	}
	return backend.TailFiles(ctx, files), nil
}

func (m *Manager) opError(op string, out []byte, err error) error {
	return &backend.UnavailableError{
		Kind: backend.KindSupervisor,
		Op:   op,
		Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))),
	}
}

func isMissingProgram(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "no such process") || strings.Contains(s, "not running")
}
