package cli

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

const statusTemplate = `=== Sync Status ===

Device:        {{.DeviceID}}
{{- if .UserID}}
User:          {{.UserID}}
{{- end}}
Last sync:     {{if .Status.LastSyncAt.IsZero}}never{{else}}{{when .Status.LastSyncAt}}{{end}}
Pending:       {{.Status.PendingChanges}}
Failed:        {{.Status.FailedChanges}}
Conflicts:     {{len .Status.OpenConflicts}}
{{- if .Status.LastErrors}}

Last errors:
{{- range .Status.LastErrors}}
  [{{.Kind}}] {{.Error}}
{{- end}}
{{- end}}
{{- if .Status.Devices}}

Devices:
{{- range .Status.Devices}}
  {{printf "%-24s" .ID}} {{printf "%-8s" .Class}} priority={{.Priority}} {{if .IsOnline}}online{{else}}offline{{end}}{{if not .LastSeen.IsZero}} seen {{when .LastSeen}}{{end}}
{{- end}}
{{- end}}
`

const conflictTemplate = `Conflict {{.ID}}
  Entity:   {{.EntityType}}/{{.EntityID}}
  Status:   {{.Status}}{{if .Resolution}} ({{.Resolution}}){{end}}
  Detected: {{when .DetectedAt}}
{{- range .Records}}
  - {{.Operation}} from {{.OriginDevice}} at {{millis .Timestamp}} checksum {{short .Checksum}}
{{- end}}
`

var templateFuncs = template.FuncMap{
	"when":   func(t time.Time) string { return t.Local().Format(time.DateTime) },
	"millis": func(ms int64) string { return time.UnixMilli(ms).Local().Format(time.DateTime) },
	"short":  shortChecksum,
}

var (
	statusTmpl   = template.Must(template.New("status").Funcs(templateFuncs).Parse(statusTemplate))
	conflictTmpl = template.Must(template.New("conflict").Funcs(templateFuncs).Parse(conflictTemplate))
)

// renderConflict форматирует конфликт для вывода
func renderConflict(c *models.Conflict) (string, error) {
	var b strings.Builder
	if err := conflictTmpl.Execute(&b, c); err != nil {
		return "", fmt.Errorf("failed to render conflict: %w", err)
	}
	return b.String(), nil
}
