package status

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webhouse"

// Collector exports tracker snapshots as Prometheus metrics.
type Collector struct {
	tracker *Tracker

	tv             *prometheus.Desc
	lamp           *prometheus.Desc
	heater         *prometheus.Desc
	target         *prometheus.Desc
	measured       *prometheus.Desc
	alarmArmed     *prometheus.Desc
	alarmTriggered *prometheus.Desc
	client         *prometheus.Desc
	mqtt           *prometheus.Desc
	uptime         *prometheus.Desc

	heaterSwitches *prometheus.Desc
	frames         *prometheus.Desc
	commands       *prometheus.Desc
	decodeErrors   *prometheus.Desc
	deviceErrors   *prometheus.Desc
	connections    *prometheus.Desc
	alarmTriggers  *prometheus.Desc
}

// NewCollector returns a collector reading from t.
func NewCollector(t *Tracker) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &Collector{
		tracker: t,

		tv:             desc("tv_on", "TV relay state (1=on, 0=off)"),
		lamp:           desc("lamp_brightness_percent", "Lamp brightness in percent", "lamp"),
		heater:         desc("heater_duty_percent", "Heater duty in percent"),
		target:         desc("target_temperature_celsius", "Target room temperature"),
		measured:       desc("measured_temperature_celsius", "Measured room temperature"),
		alarmArmed:     desc("alarm_armed", "Motion alarm armed (1=armed, 0=disarmed)"),
		alarmTriggered: desc("alarm_triggered", "Motion alarm triggered (1=triggered)"),
		client:         desc("client_connected", "1 if a client session is active"),
		mqtt:           desc("mqtt_connected", "1 if the MQTT mirror is connected"),
		uptime:         desc("uptime_seconds", "Seconds since the daemon started"),

		heaterSwitches: desc("heater_switches_total", "Heater switches by the heating controller", "direction"),
		frames:         desc("frames_sent_total", "Telemetry frames sent to clients"),
		commands:       desc("commands_applied_total", "Client commands applied"),
		decodeErrors:   desc("decode_errors_total", "Received buffers without a valid command"),
		deviceErrors:   desc("device_errors_total", "Failed device reads and writes"),
		connections:    desc("connections_total", "Client connections by outcome", "outcome"),
		alarmTriggers:  desc("alarm_triggers_total", "Times the motion alarm was raised"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tv, c.lamp, c.heater, c.target, c.measured, c.alarmArmed, c.alarmTriggered,
		c.client, c.mqtt, c.uptime, c.heaterSwitches, c.frames, c.commands,
		c.decodeErrors, c.deviceErrors, c.connections, c.alarmTriggers,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.tracker.Snapshot()
	h := snap.House
	n := snap.Counters

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if snap.Ready {
		gauge(c.tv, boolFloat(h.TV))
		gauge(c.lamp, float64(h.LampA), "a")
		gauge(c.lamp, float64(h.LampB), "b")
		gauge(c.heater, float64(h.Heater))
		gauge(c.target, float64(h.TargetTemperature))
		gauge(c.measured, float64(h.MeasuredTemperature))
		gauge(c.alarmArmed, boolFloat(h.AlarmArmed))
		gauge(c.alarmTriggered, boolFloat(h.AlarmTriggered))
	}
	gauge(c.client, boolFloat(snap.Client != ""))
	gauge(c.mqtt, boolFloat(snap.MQTTConnected))
	gauge(c.uptime, snap.Uptime().Seconds())

	counter(c.heaterSwitches, float64(snap.Heating.HeaterOn), "on")
	counter(c.heaterSwitches, float64(snap.Heating.HeaterOff), "off")
	counter(c.frames, float64(n.FramesSent))
	counter(c.commands, float64(n.CommandsApplied))
	counter(c.decodeErrors, float64(n.DecodeErrors))
	counter(c.deviceErrors, float64(n.DeviceErrors))
	counter(c.connections, float64(n.Connections), "accepted")
	counter(c.connections, float64(n.Rejected), "rejected")
	counter(c.alarmTriggers, float64(n.AlarmTriggers))
}

// NewRegistry returns a registry holding only the webhouse collector.
func NewRegistry(t *Tracker) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(t))
	return reg
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
