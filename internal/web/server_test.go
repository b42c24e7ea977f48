package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/logic"
	"github.com/sweeney/webhouse/internal/status"
)

type fakeFacade struct {
	mu   sync.Mutex
	sets map[house.Quantity][]int
	err  error
}

func (f *fakeFacade) Set(q house.Quantity, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sets == nil {
		f.sets = make(map[house.Quantity][]int)
	}
	f.sets[q] = append(f.sets[q], v)
	return nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Listen:          ":5000",
		HTTPAddr:        ":8080",
		Broker:          "tcp://192.168.1.200:1883",
		SessionMs:       10,
		DebounceTicks:   100,
		SampleMs:        1000,
		AlarmDebounceMs: 2000,
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(house.State{LampA: 50, Heater: 100, TargetTemperature: 21, MeasuredTemperature: 19, AlarmArmed: true},
		logic.Counts{HeaterOn: 5, HeaterOff: 2})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	sj := getJSON(t, ts.URL+"/index.json")
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if sj.Status.House.LampA != 50 {
		t.Errorf("House.LampA: got %d, want 50", sj.Status.House.LampA)
	}
	if sj.Status.House.Measured != 19 || sj.Status.House.Target != 21 {
		t.Errorf("temperatures: got %d/%d, want 19/21", sj.Status.House.Measured, sj.Status.House.Target)
	}
	if !sj.Status.House.AlarmArmed {
		t.Error("expected alarm armed")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.HeaterOn != 5 || sj.Status.Counts.HeaterOff != 2 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config.Listen != ":5000" {
		t.Errorf("Config.Listen: got %q", sj.Status.Config.Listen)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, Options{})

	if sj := getJSON(t, ts.URL+"/index.json"); sj.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.Update(house.State{TV: true}, logic.Counts{})
	tr.SetClient("192.168.1.10:50212")

	sj := getJSON(t, ts.URL+"/index.json")
	if !sj.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if !sj.Status.House.TV {
		t.Error("expected TV on")
	}
	if sj.Status.Client != "192.168.1.10:50212" {
		t.Errorf("Client: got %q", sj.Status.Client)
	}
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(house.State{LampB: 75, AlarmTriggered: true}, logic.Counts{})

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		if !strings.Contains(string(body), `<td id="lamp-b">75%</td>`) {
			t.Errorf("%s: lamp B not rendered", path)
		}
		if !strings.Contains(string(body), `id="alarm-triggered" class="alert"`) {
			t.Errorf("%s: triggered alarm not highlighted", path)
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(house.State{MeasuredTemperature: 22}, logic.Counts{HeaterOn: 3})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, want := range []string{
		"webhouse_measured_temperature_celsius 22",
		`webhouse_heater_switches_total{direction="on"} 3`,
		"webhouse_uptime_seconds",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAlarmEndpoints(t *testing.T) {
	f := &fakeFacade{}
	ts, _ := newTestServer(t, Options{House: f})

	for _, path := range []string{"/alarm/arm", "/alarm/disarm"} {
		resp, err := http.Post(ts.URL+path, "", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		var ar alarmResponse
		json.NewDecoder(resp.Body).Decode(&ar)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ar.AlarmArmed != (path == "/alarm/arm") {
			t.Errorf("%s: alarm_armed %v", path, ar.AlarmArmed)
		}
	}

	got := f.sets[house.AlarmArmed]
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("AlarmArmed writes: got %v, want [1 0]", got)
	}
}

func TestAlarmEndpointRejectsGet(t *testing.T) {
	f := &fakeFacade{}
	ts, _ := newTestServer(t, Options{House: f})

	resp, err := http.Get(ts.URL + "/alarm/arm")
	if err != nil {
		t.Fatalf("GET /alarm/arm: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "POST" {
		t.Errorf("Allow: got %q, want POST", allow)
	}
	if len(f.sets) != 0 {
		t.Errorf("GET must not change the alarm: %v", f.sets)
	}
}

func TestAlarmEndpointError(t *testing.T) {
	f := &fakeFacade{err: errors.New("boom")}
	ts, _ := newTestServer(t, Options{House: f})

	resp, err := http.Post(ts.URL+"/alarm/arm", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var ar alarmResponse
	json.NewDecoder(resp.Body).Decode(&ar)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if ar.Error != "boom" {
		t.Errorf("error: got %q, want boom", ar.Error)
	}
}

func TestAlarmEndpointsAbsentWithoutHouse(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/alarm/arm", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketMounted(t *testing.T) {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	ts, _ := newTestServer(t, Options{WebSocket: ws, WebSocketPath: "/ws"})

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status: got %d, want 418", resp.StatusCode)
	}
}
