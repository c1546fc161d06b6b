package api

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"stempack/internal/run"
)

var uiTemplates = template.Must(template.New("ui").Parse(`{{define "header"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>stempack{{if .Title}} · {{.Title}}{{end}}</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:960px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:12px;flex-wrap:wrap;align-items:center}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    input[type=text],select{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px}
    table{width:100%;border-collapse:collapse}
    td,th{text-align:left;padding:6px 8px;border-bottom:1px solid #efefef}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    .error{border-color:#f2b8b5;background:#fff6f6}
  </style>
</head>
<body>
  <header>
    <h1><a href="/">stempack</a></h1>
    <div class="muted">Marker-driven file grouping and archiving</div>
  </header>
  {{if .Error}}
  <div class="card error"><strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span></div>
  {{end}}
{{end}}

{{define "footer"}}
  <footer class="muted" style="margin-top:24px;font-size:12px">API base: <span class="mono">/api/v1</span></footer>
</body>
</html>
{{end}}

{{define "home"}}
{{template "header" .}}
  <div class="card">
    <h2>Start run</h2>
    <form method="post" action="/ui/runs">
      <div class="row">
        <input type="text" name="extensions" placeholder="extensions, e.g. .csv,.json (blank: configured)"/>
        <select name="layout">
          <option value="">layout: configured</option>
          <option value="flat">flat</option>
          <option value="nested">nested</option>
        </select>
        <select name="empty_groups">
          <option value="">empty groups: configured</option>
          <option value="skip">skip</option>
          <option value="archive">archive</option>
        </select>
        <button class="btn" type="submit">Start</button>
      </div>
    </form>
    <div class="muted">POST /api/v1/runs</div>
  </div>

  <div class="card">
    <h2>Runs</h2>
    {{if .Runs}}
    <table>
      <tr><th>ID</th><th>Status</th><th>Created</th><th>Results</th></tr>
      {{range .Runs}}
      <tr>
        <td class="mono"><a href="/ui/runs/{{.ID}}">{{.ID}}</a></td>
        <td><span class="status">{{.Status}}</span></td>
        <td class="muted">{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
        <td>{{with .Report}}{{.Succeeded}} ok · {{.Skipped}} skipped · {{.Failed}} failed{{else}}<span class="muted">pending</span>{{end}}</td>
      </tr>
      {{end}}
    </table>
    {{else}}
    <div class="muted">No runs yet</div>
    {{end}}
  </div>
{{template "footer" .}}
{{end}}

{{define "run"}}
{{template "header" .}}
  <div class="card">
    <h2>Run <span class="mono">{{.Run.ID}}</span></h2>
    <div>Status: <span class="status">{{.Run.Status}}</span></div>
    {{if .Run.Error}}<div>Error: {{.Run.Error}}</div>{{end}}
    {{with .Run.Report}}<div class="muted">{{.Strategy}} with {{.Workers}} worker(s){{if .Degraded}} (degraded){{end}} in {{.Elapsed}}</div>{{end}}
  </div>
  <div class="card">
    <h3>Results</h3>
    {{with .Run.Report}}
    <table>
      <tr><th>Stem</th><th>Status</th><th>Files</th><th>Detail</th></tr>
      {{range .Results}}
      <tr>
        <td class="mono">{{.Stem}}</td>
        <td><span class="status">{{.Status}}</span></td>
        <td>{{.FileCount}}</td>
        <td>{{if .Err}}{{.Err}}{{else if .Reason}}<span class="muted">{{.Reason}}</span>{{end}}
          {{if .ArchivePath}}<a href="/api/v1/runs/{{$.Run.ID}}/archives/{{.Stem}}">download</a>{{end}}</td>
      </tr>
      {{end}}
    </table>
    {{else}}
    <div class="muted">No report yet. <a href="/ui/runs/{{.Run.ID}}">Refresh</a></div>
    {{end}}
  </div>
{{template "footer" .}}
{{end}}
`))

// RegisterUIRoutes registers minimal HTML UI without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
	router.POST("/ui/runs", a.UIStartRun)
	router.GET("/ui/runs/:id", a.UIRun)
}

// UIHome renders the run list with the start form
func (a *API) UIHome(c *gin.Context) {
	c.HTML(http.StatusOK, "home", gin.H{"Runs": a.runManager.List()})
}

// UIStartRun starts a run from the form and redirects to its page
func (a *API) UIStartRun(c *gin.Context) {
	req := run.Request{
		Extensions:  splitList(c.PostForm("extensions")),
		Layout:      strings.TrimSpace(c.PostForm("layout")),
		EmptyGroups: strings.TrimSpace(c.PostForm("empty_groups")),
	}
	started, err := a.runManager.Start(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, run.ErrBusy) {
			status = http.StatusServiceUnavailable
		}
		log.Warn().Err(err).Msg("ui: failed to start run")
		c.HTML(status, "home", gin.H{"Runs": a.runManager.List(), "Error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, "/ui/runs/"+started.ID)
}

// UIRun renders a run page
func (a *API) UIRun(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.runManager.Get(id); ok {
		c.HTML(http.StatusOK, "run", gin.H{"Run": found, "Title": found.ID})
		return
	}
	c.HTML(http.StatusNotFound, "home", gin.H{"Runs": a.runManager.List(), "Error": "run not found"})
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil
	}
	return fields
}
