package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/webhouse/internal/status"
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
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Webhouse</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alert { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Webhouse</h1>
{{if not .Ready}}<p class="off">Waiting for first state read.</p>{{end}}

<h2>House</h2>
<table>
<tr><th>TV</th><td id="tv" class="{{if .House.TV}}on{{else}}off{{end}}">{{onOff .House.TV}}</td></tr>
<tr><th>Lamp A</th><td id="lamp-a">{{.House.LampA}}%</td></tr>
<tr><th>Lamp B</th><td id="lamp-b">{{.House.LampB}}%</td></tr>
<tr><th>Heater</th><td id="heater" class="{{if gt .House.Heater 0}}on{{else}}off{{end}}">{{.House.Heater}}%</td></tr>
<tr><th>Temperature</th><td id="measured">{{.House.MeasuredTemperature}}&deg;C</td></tr>
<tr><th>Target</th><td id="target">{{.House.TargetTemperature}}&deg;C</td></tr>
</table>

<h2>Alarm</h2>
<table>
<tr><th>Armed</th><td id="alarm-armed" class="{{if .House.AlarmArmed}}on{{else}}off{{end}}">{{if .House.AlarmArmed}}yes{{else}}no{{end}}
<form method="post" action="/alarm/{{if .House.AlarmArmed}}disarm{{else}}arm{{end}}"><button>{{if .House.AlarmArmed}}disarm{{else}}arm{{end}}</button></form></td></tr>
<tr><th>Triggered</th><td id="alarm-triggered" class="{{if .House.AlarmTriggered}}alert{{else}}off{{end}}">{{if .House.AlarmTriggered}}yes{{else}}no{{end}}</td></tr>
<tr><th>Triggers</th><td>{{.Counters.AlarmTriggers}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Client</th><td>{{if .Client}}{{.Client}}{{else}}none{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Heater ON</th><td>{{.Heating.HeaterOn}}</td></tr>
<tr><th>Heater OFF</th><td>{{.Heating.HeaterOff}}</td></tr>
<tr><th>Frames sent</th><td>{{.Counters.FramesSent}}</td></tr>
<tr><th>Commands</th><td>{{.Counters.CommandsApplied}}</td></tr>
<tr><th>Decode errors</th><td>{{.Counters.DecodeErrors}}</td></tr>
<tr><th>Device errors</th><td>{{.Counters.DeviceErrors}}</td></tr>
<tr><th>Connections</th><td>{{.Counters.Connections}} ({{.Counters.Rejected}} rejected)</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Listen</th><td>{{.Config.Listen}}</td></tr>
<tr><th>Session</th><td>{{.Config.SessionMs}}ms</td></tr>
<tr><th>Heating debounce</th><td>{{.Config.DebounceTicks}} ticks</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Alarm debounce</th><td>{{.Config.AlarmDebounceMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
