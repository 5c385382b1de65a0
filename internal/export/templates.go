package export

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Parse(fallbackTemplate))
		return
	}
	reportTemplate = template.Must(template.New("report").Parse(string(templateContent)))
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(report DivisionReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
  h1 { font-size: 20px; margin-bottom: 4px; }
  .contacts p { margin: 2px 0; }
  .program { margin-top: 16px; }
  .program h2 { font-size: 14px; margin-bottom: 4px; }
  ul { margin: 4px 0 4px 18px; padding: 0; }
  .notes { font-style: italic; margin-top: 4px; }
  .empty { margin-top: 20px; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<div class="contacts">
  <p>Dean: {{.Dean}}</p>
  <p>Chair: {{.Chair}}</p>
  <p>PEN Contact: {{.PenContact}}</p>
  <p>LOC Rep: {{.LocRep}}</p>
</div>
{{if .Programs}}
  {{range .Programs}}
  <div class="program">
    <h2>{{.Name}}</h2>
    {{if .Payees}}
    <ul>
      {{range .Payees}}<li>{{.Name}}: {{.DisplayAmount}}</li>
      {{end}}
    </ul>
    {{end}}
    {{if .Notes}}<p class="notes">Notes: {{.Notes}}</p>{{end}}
  </div>
  {{end}}
{{else}}
<p class="empty">No programs available.</p>
{{end}}
</body>
</html>`
