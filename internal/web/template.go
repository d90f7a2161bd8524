package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/pedalcam/internal/profile"
	"github.com/sweeney/pedalcam/internal/status"
)

// panel is the data rendered by the index page.
type panel struct {
	status.Snapshot
	Uptime   time.Duration
	Message  string
	Users    []profile.Entry
	ActiveID string
	Active   profile.Profile
}

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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pedal Camera</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
button { font-family: monospace; padding: 6px 12px; margin: 4px 4px 4px 0; }
.on, .connected { color: green; font-weight: bold; }
.off { color: #888; }
.disconnected, .error { color: red; }
.msg { background: #eef; padding: 6px 8px; }
</style>
</head>
<body>
<h1>Pedal Camera</h1>
{{if .Message}}<p class="msg">{{.Message}}</p>{{end}}

<h2>Camera</h2>
<table>
<tr><th>Camera</th><td id="camera-state" class="{{if eq .Camera "CONNECTED"}}connected{{else}}disconnected{{end}}">{{stateOrUnknown .Camera}}</td></tr>
<tr><th>Model</th><td>{{.Config.CameraModel}}</td></tr>
<tr><th>Checked</th><td>{{clock .CameraCheckedAt}}</td></tr>
<tr><th>Timelapse</th><td id="timelapse-state" class="{{if .Timelapse}}on{{else}}off{{end}}">{{if .Timelapse}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Pedal</th><td>{{stateOrUnknown (printf "%s" .Pedal)}}{{if not .PedalConnected}} <span class="disconnected">(not reading)</span>{{end}}</td></tr>
</table>
<button id="take-photo">Take photo</button>
<button id="toggle-timelapse">{{if .Timelapse}}Stop{{else}}Start{{end}} timelapse</button>
<button id="check-camera">Check camera</button>
<p id="result"></p>

<h2>User</h2>
<table>
<tr><th>Active</th><td id="active-user">{{if .Active.DisplayName}}{{.Active.DisplayName}}{{else}}{{.ActiveID}}{{end}}</td></tr>
<tr><th>Cloud folder</th><td>{{.Active.CloudFolder}}</td></tr>
<tr><th>Local folder</th><td>{{.Active.LocalFolder}}</td></tr>
</table>
<form method="post" action="/set_user">
<select name="username">
{{range .Users}}<option value="{{.ID}}"{{if eq .ID $.ActiveID}} selected{{end}}>{{.DisplayName}}</option>
{{end}}</select>
<button type="submit">Switch user</button>
</form>

<h3>Add user</h3>
<form method="post" action="/add_user">
<p><input name="username" placeholder="username" required></p>
<p><input name="display_name" placeholder="display name" required></p>
<p><input name="dropbox_folder" placeholder="cloud folder (optional)"></p>
<p><label><input type="checkbox" name="set_active"> make active</label></p>
<button type="submit">Save user</button>
</form>

<h2>Last capture</h2>
<table>
{{with .LastCapture}}
<tr><th>When</th><td>{{clock .Time}} ({{.Source}})</td></tr>
<tr><th>User</th><td>{{.User}}</td></tr>
<tr><th>Files</th><td>{{.Files}} saved, {{.Uploaded}} uploaded</td></tr>
{{if .Error}}<tr><th>Error</th><td class="error">{{.Error}}</td></tr>{{end}}
{{else}}
<tr><th>When</th><td>never</td></tr>
{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Captures</th><td>{{.Captures}} ({{.CaptureErrors}} failed)</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
{{if not .TokenExpiry.IsZero}}<tr><th>Token expires</th><td>{{clock .TokenExpiry}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/current_user">current user</a></p>
<script>
(function() {
  var out = document.getElementById("result");
  function post(url, method) {
    out.textContent = "working...";
    return fetch(url, { method: method }).then(function(r) { return r.json(); });
  }
  document.getElementById("take-photo").onclick = function() {
    post("/take_photo", "POST").then(function(j) { out.textContent = j.message; });
  };
  document.getElementById("toggle-timelapse").onclick = function() {
    post("/toggle_timelapse", "POST").then(function() { location.reload(); });
  };
  document.getElementById("check-camera").onclick = function() {
    post("/check_camera", "GET").then(function(j) {
      out.textContent = j.connected ? "Camera connected" : "Camera not connected";
    });
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, p panel) {
	p.Uptime = p.Snapshot.Uptime()
	if err := indexTmpl.Execute(w, p); err != nil {
		log.Printf("web: render: %v", err)
	}
}
