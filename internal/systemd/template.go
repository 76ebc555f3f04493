package systemd

import (
	"strings"
	"text/template"
)

// fragmentTemplate renders a maintainer-script fragment with
// {{.UnitName}}-style substitution. Text without "{{" is returned
// unchanged, matching dh_installsystemd's mostly-literal unit fragments.
type fragmentTemplate struct {
	vars map[string]string
}

func newFragmentTemplate(vars map[string]string) *fragmentTemplate {
	v := make(map[string]string, len(vars))
	for k, val := range vars {
		v[k] = val
	}
	return &fragmentTemplate{vars: v}
}

func (e *fragmentTemplate) render(name, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, e.vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
