package notify

import (
	"strings"
	"text/template"
)

// List of template names
const (
	TplOfferTask          = "offer_task"
	TplOfferRoute         = "offer_route"
	TplReconfirm          = "reconfirm"
	TplCancelled          = "cancelled"
	TplOperatorEscalation = "operator_escalation"
	TplSyncFailure        = "sync_failure"
)

const templateText = `
{{define "offer_task"}}Hi {{.Name}}, new job {{.Ref}}: {{.Summary}}{{with .Window}}, {{.}}{{end}}.
Accept: {{.Accept}}
Decline: {{.Decline}}
Offer open until {{.Expires}}. You can also reply YES or NO.{{end}}

{{define "offer_route"}}Hi {{.Name}}, new route {{.Ref}}: {{.Summary}}{{with .Window}}, {{.}}{{end}}.
Accept: {{.Accept}}
Decline: {{.Decline}}
Offer open until {{.Expires}}. You can also reply YES or NO.{{end}}

{{define "reconfirm"}}Hi {{.Name}}, job {{.Ref}} changed: {{.Change}}. Now: {{.Summary}}{{with .Window}}, {{.}}{{end}}.
Still able to do it? Confirm: {{.Accept}}
Release: {{.Decline}}
Please answer by {{.Expires}}, otherwise the job is released.{{end}}

{{define "cancelled"}}Hi {{.Name}}, job {{.Ref}} ({{.Summary}}) was cancelled. No action needed.{{end}}

{{define "operator_escalation"}}{{len .Items}} unit(s) need manual assignment:
{{range .Items}}- unit {{.UnitID}} ({{.Type}} {{.Ref}}): {{.Reason}} {{.Link}}
{{end}}{{end}}

{{define "sync_failure"}}Dispatch provider {{.Op}} failed for unit {{.UnitID}} ({{.Ref}}, container {{.Container}}): {{.Cause}} {{.Link}}{{end}}
`

var templates = template.Must(template.New("notify").Parse(templateText))

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
