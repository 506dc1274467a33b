package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tilt-volume/internal/status"
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
	"num": func(f float64) string {
		return fmt.Sprintf("%.4f", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tilt Volume</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.fresh { color: green; font-weight: bold; }
.stale { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Tilt Volume<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Sensors</h2>
<table>
<tr><th>Feed</th><td id="feed" class="{{if .Stale}}stale{{else}}fresh{{end}}">{{if not .HaveSensor}}waiting{{else if .Stale}}stalled{{else}}live{{end}}</td></tr>
{{if .HaveSensor}}{{with .Sensor.Reading}}
<tr><th>Gyroscope x</th><td id="gx">{{num .Gyroscope.X}}</td></tr>
<tr><th>Gyroscope y</th><td id="gy">{{num .Gyroscope.Y}}</td></tr>
<tr><th>Gyroscope z</th><td id="gz">{{num .Gyroscope.Z}}</td></tr>
<tr><th>Orientation x</th><td id="rx">{{num .Orientation.X}}</td></tr>
<tr><th>Orientation y</th><td id="ry">{{num .Orientation.Y}}</td></tr>
<tr><th>Orientation z</th><td id="rz">{{num .Orientation.Z}}</td></tr>
{{end}}{{else}}
<tr><th>Gyroscope x</th><td id="gx">N/A</td></tr>
<tr><th>Gyroscope y</th><td id="gy">N/A</td></tr>
<tr><th>Gyroscope z</th><td id="gz">N/A</td></tr>
<tr><th>Orientation x</th><td id="rx">N/A</td></tr>
<tr><th>Orientation y</th><td id="ry">N/A</td></tr>
<tr><th>Orientation z</th><td id="rz">N/A</td></tr>
{{end}}
</table>

<h2>Listener</h2>
<table>
<tr><th>Address</th><td>{{.Config.ListenAddr}}</td></tr>
<tr><th>Last peer</th><td>{{if .Counters.LastPeer}}{{.Counters.LastPeer}}{{else}}none{{end}}</td></tr>
<tr><th>Received</th><td>{{.Counters.Received}}</td></tr>
<tr><th>Decoded</th><td>{{.Counters.Decoded}}</td></tr>
<tr><th>Dropped</th><td>{{.Counters.Dropped}}</td></tr>
<tr><th>Receive errors</th><td>{{.Counters.ReceiveErrors}}</td></tr>
<tr><th>Raise requests</th><td>{{.Counters.RaiseRequests}} ({{.Counters.RaiseErrors}} failed, {{.Config.VolumeMode}})</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/snapshot">snapshot</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var feed = document.getElementById("feed");
  var ids = {gx: ["gyroscope", "x"], gy: ["gyroscope", "y"], gz: ["gyroscope", "z"],
             rx: ["orientation", "x"], ry: ["orientation", "y"], rz: ["orientation", "z"]};

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        for (var id in ids) {
          var v = msg[ids[id][0]][ids[id][1]];
          document.getElementById(id).textContent = v.toFixed(4);
        }
        feed.textContent = "live";
        feed.className = "fresh";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime()/Stale() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Stale  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Stale:    snap.Stale(),
	}
	return indexTmpl.Execute(w, data)
}
