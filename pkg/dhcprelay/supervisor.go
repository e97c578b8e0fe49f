package dhcprelay

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var supervisorTmpl = template.Must(template.New("supervisor").Funcs(template.FuncMap{
	"escape": func(s string) string { return strings.ReplaceAll(s, "%", "%%") },
}).Parse(`[group:dhcp-relay]
programs={{ .Programs }}
{{ range .Result.V4 }}
[program:{{ .Name }}]
command={{ escape .CommandLine }}
priority=3
autostart=false
autorestart=false
stdout_logfile=syslog
stderr_logfile=syslog
dependent_startup=true
{{ end }}{{ if .Result.V6 }}
[program:dhcp6relay]
command={{ .DHCP6Relay }}
priority=3
autostart=false
autorestart=false
stdout_logfile=syslog
stderr_logfile=syslog
dependent_startup=true
{{ end }}`))

// ProgramNames returns the supervisor program names of r in order.
func (r *Result) ProgramNames() []string {
	names := make([]string, 0, len(r.V4)+1)
	for _, p := range r.V4 {
		names = append(names, p.Name)
	}
	if len(r.V6) > 0 {
		names = append(names, "dhcp6relay")
	}
	return names
}

// Supervisor renders r as a supervisord configuration with one group
// holding every relay program. An empty result renders nothing.
func (r *Result) Supervisor() ([]byte, error) {
	if r.Empty() {
		return nil, nil
	}
	var buf bytes.Buffer
	err := supervisorTmpl.Execute(&buf, struct {
		Result     *Result
		Programs   string
		DHCP6Relay string
	}{r, strings.Join(r.ProgramNames(), ","), DHCP6RelayPath})
	if err != nil {
		return nil, fmt.Errorf("render supervisor config: %w", err)
	}
	return buf.Bytes(), nil
}
