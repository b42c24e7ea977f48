package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Ready         bool       `json:"ready"`
	House         HouseJSON  `json:"house"`
	Client        string     `json:"client,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// HouseJSON is the JSON representation of the device state.
type HouseJSON struct {
	TV             bool `json:"tv"`
	LampA          int  `json:"lamp_a"`
	LampB          int  `json:"lamp_b"`
	Heater         int  `json:"heater"`
	Target         int  `json:"target_temperature"`
	Measured       int  `json:"measured_temperature"`
	AlarmArmed     bool `json:"alarm_armed"`
	AlarmTriggered bool `json:"alarm_triggered"`
	LED            bool `json:"led"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	HeaterOn        int    `json:"heater_on"`
	HeaterOff       int    `json:"heater_off"`
	FramesSent      uint64 `json:"frames_sent"`
	CommandsApplied uint64 `json:"commands_applied"`
	DecodeErrors    uint64 `json:"decode_errors"`
	DeviceErrors    uint64 `json:"device_errors"`
	Connections     uint64 `json:"connections"`
	Rejected        uint64 `json:"rejected_connections"`
	AlarmTriggers   uint64 `json:"alarm_triggers"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Listen          string `json:"listen"`
	HTTPAddr        string `json:"http_addr"`
	Broker          string `json:"broker"`
	SessionMs       int64  `json:"session_ms"`
	DebounceTicks   int    `json:"debounce_ticks"`
	SampleMs        int64  `json:"sample_ms"`
	AlarmDebounceMs int64  `json:"alarm_debounce_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	h := snap.House
	c := snap.Counters

	return StatusInner{
		Ready: snap.Ready,
		House: HouseJSON{
			TV:             h.TV,
			LampA:          h.LampA,
			LampB:          h.LampB,
			Heater:         h.Heater,
			Target:         h.TargetTemperature,
			Measured:       h.MeasuredTemperature,
			AlarmArmed:     h.AlarmArmed,
			AlarmTriggered: h.AlarmTriggered,
			LED:            h.LED,
		},
		Client:        snap.Client,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			HeaterOn:        snap.Heating.HeaterOn,
			HeaterOff:       snap.Heating.HeaterOff,
			FramesSent:      c.FramesSent,
			CommandsApplied: c.CommandsApplied,
			DecodeErrors:    c.DecodeErrors,
			DeviceErrors:    c.DeviceErrors,
			Connections:     c.Connections,
			Rejected:        c.Rejected,
			AlarmTriggers:   c.AlarmTriggers,
		},
		Config: ConfigJSON{
			Listen:          snap.Config.Listen,
			HTTPAddr:        snap.Config.HTTPAddr,
			Broker:          snap.Config.Broker,
			SessionMs:       snap.Config.SessionMs,
			DebounceTicks:   snap.Config.DebounceTicks,
			SampleMs:        snap.Config.SampleMs,
			AlarmDebounceMs: snap.Config.AlarmDebounceMs,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
