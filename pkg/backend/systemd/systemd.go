package systemd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/log"
	"github.com/herdctl/herdctl/pkg/types"
)

const fingerprintHeader = "# Fingerprint: "

// Config configures the systemd backend.
type Config struct {
	// UnitDir overrides the unit file directory. Defaults to the system or
	// per-user unit path depending on UserMode.
	UnitDir string

	// UserMode runs systemctl with --user and installs units under the
	// calling user's configuration. Defaults to true for non-root users.
	UserMode bool

	Runner backend.Runner
}

// Manager drives systemd through unit files and systemctl.
type Manager struct {
	unitDir  string
	userMode bool
	runner   backend.Runner
	logger   zerolog.Logger
}

// New creates a systemd adapter.
func New(cfg Config) *Manager {
	userMode := cfg.UserMode || os.Geteuid() != 0
	unitDir := cfg.UnitDir
	if unitDir == "" {
		if userMode {
			home, _ := os.UserHomeDir()
			unitDir = filepath.Join(home, ".config", "systemd", "user")
		} else {
			unitDir = "/etc/systemd/system"
		}
	}
	runner := cfg.Runner
	if runner == nil {
		runner = backend.ExecRunner()
	}
	return &Manager{
		unitDir:  unitDir,
		userMode: userMode,
		runner:   runner,
		logger:   log.WithComponent("systemd"),
	}
}

func (m *Manager) Kind() backend.Kind {
	return backend.KindSystemd
}

func (m *Manager) unitFile(unitName string) string {
	return filepath.Join(m.unitDir, backend.UnitPrefix+unitName+".service")
}

func (m *Manager) systemctl(ctx context.Context, args ...string) ([]byte, error) {
	if m.userMode {
		args = append([]string{"--user"}, args...)
	}
	out, err := m.runner.Output(ctx, "systemctl", args...)
	return out, err
}

// ListInstalled scans the unit directory for herdctl-owned unit files and
// recovers their fingerprints from the rendered header.
func (m *Manager) ListInstalled() ([]types.InstalledUnit, error) {
	entries, err := os.ReadDir(m.unitDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &backend.UnavailableError{Kind: backend.KindSystemd, Op: "list", Err: err}
	}

	var units []types.InstalledUnit
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, backend.UnitPrefix) || !strings.HasSuffix(name, ".service") {
			continue
		}
		unitName := strings.TrimSuffix(strings.TrimPrefix(name, backend.UnitPrefix), ".service")
		fp, err := readFingerprint(filepath.Join(m.unitDir, name))
		if err != nil {
			m.logger.Warn().Err(err).Str("unit", unitName).Msg("unreadable unit file, slating for rewrite")
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

// Install renders and writes the unit file for one instance. The unit is
// not started; Apply picks the file up via daemon-reload.
func (m *Manager) Install(inst types.ServiceInstance) error {
	if err := os.MkdirAll(m.unitDir, 0o755); err != nil {
		return &backend.UnavailableError{Kind: backend.KindSystemd, Op: "install", Err: err}
	}
	contents, err := renderUnit(inst, m.userMode)
	if err != nil {
		return err
	}
	_, err = backend.WriteUnitFile(m.unitFile(inst.UnitName()), contents, inst.UnitName())
	return err
}

// Remove stops and deletes a unit. A missing unit is a no-op.
func (m *Manager) Remove(unitName string) error {
	path := m.unitFile(unitName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	// Stop before unlinking so daemon-reload doesn't orphan a running
	// process with no unit file.
	if _, err := m.stopUnit(context.Background(), unitName); err != nil {
		return err
	}
	m.logger.Info().Str("unit", unitName).Msg("removing unit file")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Apply commits staged unit file changes with a single daemon-reload.
func (m *Manager) Apply() error {
	if _, err := m.systemctl(context.Background(), "daemon-reload"); err != nil {
		return &backend.UnavailableError{Kind: backend.KindSystemd, Op: "daemon-reload", Err: err}
	}
	return nil
}

// targets resolves a unit name to concrete systemctl targets. A bare group
// name for a replicated service expands to every installed replica so base
// operations fan out.
func (m *Manager) targets(unitName string) []string {
	if _, err := os.Stat(m.unitFile(unitName)); err == nil {
		return []string{backend.UnitPrefix + unitName + ".service"}
	}
	matches, _ := filepath.Glob(m.unitFile(unitName + "@*"))
	if len(matches) > 0 {
		targets := make([]string, len(matches))
		for i, match := range matches {
			targets[i] = filepath.Base(match)
		}
		return targets
	}
	return []string{backend.UnitPrefix + unitName + ".service"}
}

func (m *Manager) Start(ctx context.Context, unitName string) (types.UnitStatus, error) {
	if out, err := m.systemctl(ctx, append([]string{"start"}, m.targets(unitName)...)...); err != nil {
		return types.UnitStatus{}, m.opError("start", out, err)
	}
	return m.statusOne(ctx, unitName)
}

func (m *Manager) Stop(ctx context.Context, unitName string) (types.UnitStatus, error) {
	return m.stopUnit(ctx, unitName)
}

func (m *Manager) stopUnit(ctx context.Context, unitName string) (types.UnitStatus, error) {
	out, err := m.systemctl(ctx, append([]string{"stop"}, m.targets(unitName)...)...)
	if err != nil && !isMissingUnit(out) {
		return types.UnitStatus{}, m.opError("stop", out, err)
	}
	return types.UnitStatus{UnitName: unitName, State: types.RunStateStopped}, nil
}

func (m *Manager) Restart(ctx context.Context, unitName string) (types.UnitStatus, error) {
	if out, err := m.systemctl(ctx, append([]string{"restart"}, m.targets(unitName)...)...); err != nil {
		return types.UnitStatus{}, m.opError("restart", out, err)
	}
	return m.statusOne(ctx, unitName)
}

// Signal delivers a signal to the unit's main process for in-place reloads.
func (m *Manager) Signal(ctx context.Context, unitName string, signal string) error {
	args := append([]string{"kill", "--signal=" + signal}, m.targets(unitName)...)
	if out, err := m.systemctl(ctx, args...); err != nil && !isMissingUnit(out) {
		return m.opError("signal", out, err)
	}
	return nil
}

func (m *Manager) Status(ctx context.Context, unitNames []string) ([]types.UnitStatus, error) {
	var targets []string
	var labels []string
	for _, name := range unitNames {
		for _, t := range m.targets(name) {
			targets = append(targets, t)
			labels = append(labels, strings.TrimSuffix(strings.TrimPrefix(t, backend.UnitPrefix), ".service"))
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	// is-active exits non-zero when any unit is inactive; its output is
	// still one state per line, so the error itself is not meaningful.
	out, _ := m.systemctl(ctx, append([]string{"is-active"}, targets...)...)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")

	statuses := make([]types.UnitStatus, 0, len(labels))
	for i, label := range labels {
		state := types.RunStateUnknown
		detail := ""
		if i < len(lines) {
			detail = strings.TrimSpace(lines[i])
			switch detail {
			case "active", "activating":
				state = types.RunStateRunning
			case "inactive":
				state = types.RunStateStopped
			case "failed":
				state = types.RunStateFailed
			}
		}
		statuses = append(statuses, types.UnitStatus{UnitName: label, State: state, Detail: detail})
	}
	return statuses, nil
}

func (m *Manager) statusOne(ctx context.Context, unitName string) (types.UnitStatus, error) {
	statuses, err := m.Status(ctx, []string{unitName})
	if err != nil || len(statuses) == 0 {
		return types.UnitStatus{UnitName: unitName, State: types.RunStateUnknown}, err
	}
	return statuses[0], nil
}

// FollowLogs streams journal lines for the named units until ctx is
// cancelled. One journalctl stream runs per unit so every line keeps its
// unit attribution.
func (m *Manager) FollowLogs(ctx context.Context, unitNames []string) (<-chan backend.LogLine, error) {
	type unitStream struct {
		unit   string
		stream io.ReadCloser
	}

	var streams []unitStream
	for _, name := range unitNames {
		for _, target := range m.targets(name) {
			args := []string{"-f", "--no-pager", "-u", target}
			if m.userMode {
				args = append([]string{"--user"}, args...)
			}
			stream, err := m.runner.Stream(ctx, "journalctl", args...)
			if err != nil {
				for _, s := range streams {
					s.stream.Close()
				}
				return nil, &backend.UnavailableError{Kind: backend.KindSystemd, Op: "follow", Err: err}
			}
			unit := strings.TrimSuffix(strings.TrimPrefix(target, backend.UnitPrefix), ".service")
			streams = append(streams, unitStream{unit: unit, stream: stream})
		}
	}

	out := make(chan backend.LogLine, 64)
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s unitStream) {
			defer wg.Done()
			defer s.stream.Close()
			scanner := bufio.NewScanner(s.stream)
			for scanner.Scan() {
				select {
				case out <- backend.LogLine{Unit: s.unit, Line: scanner.Text()}:
				case <-ctx.Done():
					return
				}
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (m *Manager) opError(op string, out []byte, err error) error {
	return &backend.UnavailableError{
		Kind: backend.KindSystemd,
		Op:   op,
		Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))),
	}
}

func isMissingUnit(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "not loaded") || strings.Contains(s, "could not be found")
}
