package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/herdctl/herdctl/pkg/backend"
)

// supervisordConfTemplate is the top-level supervisord configuration written
// when the managed instance has none yet: a control socket next to the
// config file and an include of the per-program files this backend stages.
var supervisordConfTemplate = template.Must(template.New("supervisord").Parse(`;
; This file is maintained by herdctl - CHANGES WILL BE OVERWRITTEN
;

[unix_http_server]
file={{.SocketFile}}

[supervisord]
logfile={{.LogFile}}
pidfile={{.PidFile}}
nodaemon=false

[rpcinterface:supervisor]
supervisor.rpcinterface_factory = supervisor.rpcinterface:make_main_rpcinterface

[supervisorctl]
serverurl=unix://{{.SocketFile}}

[include]
files = {{.IncludeGlob}}
`))

type supervisordConfVars struct {
	SocketFile  string
	LogFile     string
	PidFile     string
	IncludeGlob string
}

// ensureSupervisordConf writes the top-level supervisord.conf if it does not
// exist yet, so a fresh install can be driven without hand-writing one. An
// existing file is never touched: it may carry operator customizations.
func (m *Manager) ensureSupervisordConf() error {
	if m.configFile == "" {
		return nil
	}
	if _, err := os.Stat(m.configFile); err == nil {
		return nil
	}

	base := filepath.Dir(m.configFile)
	for _, dir := range []string{base, m.logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &backend.UnavailableError{Kind: backend.KindSupervisor, Op: "bootstrap", Err: err}
		}
	}

	vars := supervisordConfVars{
		SocketFile:  filepath.Join(base, "supervisord.sock"),
		LogFile:     filepath.Join(m.logDir, "supervisord.log"),
		PidFile:     filepath.Join(base, "supervisord.pid"),
		IncludeGlob: filepath.Join(m.confDir, "*.conf"),
	}

	var b strings.Builder
	if err := supervisordConfTemplate.Execute(&b, vars); err != nil {
		return err
	}
	m.logger.Info().Str("path", m.configFile).Msg("writing supervisord configuration")
	if err := os.WriteFile(m.configFile, []byte(b.String()), 0o644); err != nil {
		return &backend.UnavailableError{Kind: backend.KindSupervisor, Op: "bootstrap", Err: err}
	}
	return nil
}
