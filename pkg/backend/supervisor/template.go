package supervisor

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/herdctl/herdctl/pkg/types"
)

// programTemplate is the rendered supervisor program file. Supervisor merges
// every file in the include dir, so each instance gets its own file and the
// fingerprint header makes the file self-describing.
var programTemplate = template.Must(template.New("program").Parse(`;
; This file is maintained by herdctl - CHANGES WILL BE OVERWRITTEN
; Fingerprint: {{.Fingerprint}}
;

[program:{{.ProgramName}}]
command={{.Command}}
{{- if .WorkingDir}}
directory={{.WorkingDir}}
{{- end}}
{{- if .Umask}}
umask={{.Umask}}
{{- end}}
{{- if .Environment}}
environment={{.Environment}}
{{- end}}
stdout_logfile={{.LogFile}}
redirect_stderr=true
autostart=true
autorestart=true
startsecs=2
stopwaitsecs={{.StopSec}}
stopasgroup=true
killasgroup=true
`))

type programVars struct {
	ProgramName string
	Fingerprint string
	Command     string
	WorkingDir  string
	Umask       string
	Environment string
	LogFile     string
	StopSec     int
}

// programName maps a unit name to a supervisor program name. Supervisor
// treats "@" specially in process name expansion, so replica indices use an
// underscore instead.
func programName(unitName string) string {
	return "herd-" + strings.ReplaceAll(unitName, "@", "_")
}

func renderProgram(inst types.ServiceInstance, logFile string) (string, error) {
	v := programVars{
		ProgramName: programName(inst.UnitName()),
		Fingerprint: inst.Fingerprint(),
		Command:     inst.Command,
		WorkingDir:  inst.WorkingDir,
		Umask:       inst.Umask,
		Environment: formatEnvironment(inst.Environment),
		LogFile:     logFile,
		StopSec:     int(inst.StopTimeout.Seconds()),
	}
	if v.StopSec == 0 {
		v.StopSec = 10
	}

	var b strings.Builder
	if err := programTemplate.Execute(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// formatEnvironment renders the supervisor environment= value. Values are
// quoted and percent signs doubled, since supervisor expands %(...)s in its
// config values.
func formatEnvironment(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		val := strings.ReplaceAll(env[k], "%", "%%")
		val = strings.ReplaceAll(val, `"`, `\"`)
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, val))
	}
	return strings.Join(pairs, ",")
}
