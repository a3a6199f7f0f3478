package systemd

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/herdctl/herdctl/pkg/types"
)

// unitTemplate is the rendered .service file. The fingerprint header is how
// ListInstalled recovers the structural hash without re-expanding anything.
var unitTemplate = template.Must(template.New("unit").Parse(`#
# This file is maintained by herdctl - CHANGES WILL BE OVERWRITTEN
# Fingerprint: {{.Fingerprint}}
#

[Unit]
Description=herdctl {{.UnitName}}
After=network.target

[Service]
Type=simple
{{- if .Umask}}
UMask={{.Umask}}
{{- end}}
{{- if .WorkingDir}}
WorkingDirectory={{.WorkingDir}}
{{- end}}
TimeoutStartSec={{.StartSec}}
TimeoutStopSec={{.StopSec}}
ExecStart={{.Command}}
{{- range .Environment}}
Environment={{.}}
{{- end}}
Restart=always

MemoryAccounting=yes
CPUAccounting=yes

[Install]
WantedBy={{.WantedBy}}
`))

type unitVars struct {
	UnitName    string
	Fingerprint string
	Umask       string
	WorkingDir  string
	StartSec    int
	StopSec     int
	Command     string
	Environment []string
	WantedBy    string
}

func renderUnit(inst types.ServiceInstance, userMode bool) (string, error) {
	wantedBy := "multi-user.target"
	if userMode {
		wantedBy = "default.target"
	}

	keys := make([]string, 0, len(inst.Environment))
	for k := range inst.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, quoteEnvValue(inst.Environment[k])))
	}

	v := unitVars{
		UnitName:    inst.UnitName(),
		Fingerprint: inst.Fingerprint(),
		Umask:       inst.Umask,
		WorkingDir:  inst.WorkingDir,
		StartSec:    int(inst.StartTimeout.Seconds()),
		StopSec:     int(inst.StopTimeout.Seconds()),
		Command:     inst.Command,
		Environment: env,
		WantedBy:    wantedBy,
	}
	if v.StartSec == 0 {
		v.StartSec = 10
	}
	if v.StopSec == 0 {
		v.StopSec = 10
	}

	var b strings.Builder
	if err := unitTemplate.Execute(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func quoteEnvValue(v string) string {
	if strings.ContainsAny(v, " \t\"'") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
