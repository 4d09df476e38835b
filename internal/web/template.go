package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/presenced/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Presence: {{.Config.Subject}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Presence: {{.Config.Subject}}</h1>

<h2>Current</h2>
<table>
{{if .Started}}<tr><th>State</th><td id="state" class="active">{{.Current.Name}}</td></tr>
{{if .Current.Text}}<tr><th>Text</th><td id="text">{{.Current.Text}}</td></tr>{{end}}
<tr><th>Since</th><td>{{ts .Current.EnteredOn}}</td></tr>
{{if .Current.EnteredFrom}}<tr><th>From</th><td>{{.Current.EnteredFrom}}</td></tr>{{end}}
{{else}}<tr><th>State</th><td id="state" class="unknown">UNKNOWN</td></tr>
{{end}}</table>

<h2>States</h2>
<table>
<tr><th>Name</th><td>Enter after</td><td>Entered</td></tr>
{{range .States}}<tr{{if and $.Started (eq .ID $.Current.ID)}} class="active"{{end}}><th>{{.Name}}{{if .Initial}} (initial){{end}}</th><td>{{.Enter}}</td><td>{{index $.Transitions .Name}}</td></tr>
{{end}}</table>

<h2>Activity</h2>
<table>
{{range $type, $n := .Activity}}<tr><th>{{$type}}</th><td>{{$n}}</td></tr>
{{else}}<tr><th>none yet</th><td></td></tr>
{{end}}<tr><th>Ignored</th><td>{{.Ignored}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>GPIO lines</th><td>{{.Config.GPIOLines}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .AcceptsActivity}}
<script>
(function() {
  var events = ["click", "keydown", "mousemove", "touchstart"];
  var last = 0;

  function report(e) {
    var now = Date.now();
    if (now - last < 1000) { return; }
    last = now;
    fetch("/activity", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ type: e.type, movement_x: e.movementX || 0, movement_y: e.movementY || 0 })
    }).catch(function() {});
  }

  events.forEach(function(name) {
    document.addEventListener(name, report, { passive: true });
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, acceptsActivity bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime          time.Duration
		AcceptsActivity bool
	}{
		Snapshot:        snap,
		Uptime:          snap.Uptime(),
		AcceptsActivity: acceptsActivity,
	}
	indexTmpl.Execute(w, data)
}
