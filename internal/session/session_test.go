package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/webhouse/internal/gpio"
	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/lm75"
	"github.com/sweeney/webhouse/internal/logic"
	"github.com/sweeney/webhouse/internal/protocol"
	"github.com/sweeney/webhouse/internal/pwm"
	"github.com/sweeney/webhouse/internal/status"
	"github.com/sweeney/webhouse/internal/transport"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type testAlarm struct {
	mu        sync.Mutex
	armed     bool
	triggered bool
}

func (a *testAlarm) Arm()    { a.mu.Lock(); a.armed, a.triggered = true, false; a.mu.Unlock() }
func (a *testAlarm) Disarm() { a.mu.Lock(); a.armed = false; a.mu.Unlock() }
func (a *testAlarm) Reset()  { a.mu.Lock(); a.triggered = false; a.mu.Unlock() }
func (a *testAlarm) Trigger() {
	a.mu.Lock()
	a.triggered = true
	a.mu.Unlock()
}

func (a *testAlarm) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

func (a *testAlarm) IsTriggered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.triggered
}

type recordingMirror struct {
	got []protocol.Telemetry
	err error
}

func (m *recordingMirror) Mirror(_ context.Context, _ time.Time, t protocol.Telemetry) error {
	m.got = append(m.got, t)
	return m.err
}

type rig struct {
	fs      afero.Fs
	house   *house.House
	sensor  *lm75.FakeSensor
	led     *gpio.FakeOutput
	alarm   *testAlarm
	heating *logic.Controller
	tracker *status.Tracker
	mirror  *recordingMirror
	loop    *Loop
	ctx     context.Context
}

// newRig builds a loop over a real house with fake hardware. The sensor
// reading is raw; the house subtracts the default offset of 10.
func newRig(t *testing.T, threshold int, raw ...int) *rig {
	t.Helper()

	r := &rig{
		fs:      afero.NewMemMapFs(),
		sensor:  lm75.NewFakeSensor(raw...),
		led:     gpio.NewFakeOutput(),
		alarm:   &testAlarm{},
		heating: logic.NewController(threshold),
		tracker: status.NewTracker(epoch, status.Config{}),
		mirror:  &recordingMirror{},
		ctx:     context.Background(),
	}

	channel := func(dir string) pwm.Channel {
		ch, err := pwm.NewFakeChannel(r.fs, dir)
		require.NoError(t, err)
		return ch
	}

	opts := house.DefaultOptions()
	opts.Now = func() time.Time { return epoch }

	h, err := house.Open(house.Hardware{
		TV:     gpio.NewFakeOutput(),
		LED:    r.led,
		LampA:  channel("/pwm/lamp_a"),
		LampB:  channel("/pwm/lamp_b"),
		Heater: channel("/pwm/heater"),
		Sensor: r.sensor,
		Alarm:  r.alarm,
	}, opts)
	require.NoError(t, err)
	r.house = h

	r.loop = New(Config{
		House:       h,
		Heating:     r.heating,
		Tracker:     r.tracker,
		Mirrors:     []Mirror{r.mirror},
		StatusEvery: 1,
		Now:         func() time.Time { return epoch },
	})
	return r
}

func (r *rig) get(t *testing.T, q house.Quantity) int {
	t.Helper()
	v, err := r.house.Get(q)
	require.NoError(t, err)
	return v
}

func TestNewConnectionGetsSnapshot(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")

	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	require.Equal(t, []string{`{"TempIst":"20","Heizung":"0","Burglar":"0"}`}, conn.Sent())

	// Nothing changed since.
	r.loop.step(r.ctx)
	r.loop.step(r.ctx)
	assert.Len(t, conn.Sent(), 1)
}

func TestLampCommandEndToEnd(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	conn.Push([]byte(`{"Lampe":"50"}`))
	r.loop.step(r.ctx)

	assert.Equal(t, 50, r.get(t, house.LampA))
	assert.Len(t, conn.Sent(), 1, "a lamp change alone produces no telemetry")
	assert.Equal(t, uint64(1), r.tracker.Snapshot().Counters.CommandsApplied)
}

func TestFullCommand(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	conn.Push([]byte(`{"TV":"ON","Lampe":"20","Leuchter":"80","TempSoll":"23"}`))
	r.loop.step(r.ctx)

	assert.Equal(t, 1, r.get(t, house.TV))
	assert.Equal(t, 20, r.get(t, house.LampA))
	assert.Equal(t, 80, r.get(t, house.LampB))
	assert.Equal(t, 23, r.get(t, house.TargetTemperature))

	conn.Push([]byte(`{"TV":"OFF"}`))
	r.loop.step(r.ctx)
	assert.Equal(t, 0, r.get(t, house.TV))
}

func TestCoalescedCommandsLastWins(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	conn.Push([]byte(`{"TempSoll":"18"}{"TempSoll":"25"}`))
	r.loop.step(r.ctx)

	assert.Equal(t, 25, r.get(t, house.TargetTemperature))
}

func TestMalformedInputIgnored(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	conn.Push([]byte(`{"Lampe":`))
	r.loop.step(r.ctx)

	assert.False(t, conn.Closed())
	assert.Len(t, conn.Sent(), 1, "no error frame is sent back")
	assert.Equal(t, 0, r.get(t, house.LampA))
	assert.Equal(t, uint64(1), r.tracker.Snapshot().Counters.DecodeErrors)
}

func TestOutOfRangeLampClamped(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	conn.Push([]byte(`{"Leuchter":"250"}`))
	r.loop.step(r.ctx)

	assert.Equal(t, 100, r.get(t, house.LampB))
}

func TestDeviceErrorDoesNotAbortCommand(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	require.NoError(t, r.fs.Remove("/pwm/lamp_a/duty"))

	conn.Push([]byte(`{"Lampe":"50","Leuchter":"40"}`))
	r.loop.step(r.ctx)

	assert.Equal(t, 40, r.get(t, house.LampB))
	assert.False(t, conn.Closed())
	assert.NotZero(t, r.tracker.Snapshot().Counters.DeviceErrors)
}

func TestSecondConnectionRejected(t *testing.T) {
	r := newRig(t, 100, 30)
	first := transport.NewFakeConn("10.0.0.2:4000")
	second := transport.NewFakeConn("10.0.0.3:4000")

	r.loop.accept(r.ctx, first)
	r.loop.accept(r.ctx, second)

	assert.True(t, second.Closed())
	assert.False(t, first.Closed())

	snap := r.tracker.Snapshot()
	assert.Equal(t, "10.0.0.2:4000", snap.Client)
	assert.Equal(t, uint64(1), snap.Counters.Connections)
	assert.Equal(t, uint64(1), snap.Counters.Rejected)
}

func TestCloseByteDropsConnection(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	conn.Push([]byte{transport.CloseByte})
	r.loop.step(r.ctx)

	assert.True(t, conn.Closed())
	assert.Empty(t, r.tracker.Snapshot().Client)

	// A new client can connect and gets a fresh snapshot.
	next := transport.NewFakeConn("10.0.0.4:4000")
	r.loop.accept(r.ctx, next)
	r.loop.step(r.ctx)
	assert.Equal(t, []string{`{"TempIst":"20","Heizung":"0","Burglar":"0"}`}, next.Sent())
}

func TestCommandBeforeCloseByteApplied(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	conn.Push(append([]byte(`{"Lampe":"5"}`), transport.CloseByte))
	r.loop.step(r.ctx)

	v, err := r.house.Get(house.LampA)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.False(t, conn.Closed())

	r.loop.step(r.ctx)
	assert.True(t, conn.Closed())
	assert.Nil(t, r.loop.conn)
}

func TestHangupDropsConnection(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	conn.Hangup()
	r.loop.step(r.ctx)
	assert.True(t, conn.Closed())
	assert.Nil(t, r.loop.conn)
}

func TestSendErrorDropsConnection(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	conn.SendError = errors.New("broken pipe")
	r.loop.accept(r.ctx, conn)

	r.loop.step(r.ctx)
	assert.True(t, conn.Closed())
	assert.Nil(t, r.loop.conn)
}

func TestHeaterSwitchReported(t *testing.T) {
	r := newRig(t, 3, 28) // measured 18, target 20
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	r.loop.step(r.ctx)
	r.loop.step(r.ctx)
	assert.Equal(t, []string{`{"TempIst":"18","Heizung":"0","Burglar":"0"}`}, conn.Sent())
	assert.Equal(t, 0, r.get(t, house.Heater))

	r.loop.step(r.ctx)
	assert.Equal(t, 100, r.get(t, house.Heater))
	assert.Equal(t, []string{
		`{"TempIst":"18","Heizung":"0","Burglar":"0"}`,
		`{"Heizung":"100"}`,
	}, conn.Sent())
}

func TestHeatingRunsWithoutClient(t *testing.T) {
	r := newRig(t, 3, 35) // measured 25, target 20
	require.NoError(t, r.house.Set(house.Heater, 100))

	for i := 0; i < 3; i++ {
		r.loop.step(r.ctx)
	}
	assert.Equal(t, 0, r.get(t, house.Heater))
	assert.Equal(t, 1, r.tracker.Snapshot().Heating.HeaterOff)
}

func TestBurglarReportedThenReset(t *testing.T) {
	r := newRig(t, 100, 30)
	r.alarm.Arm()
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	r.alarm.Trigger()
	r.loop.step(r.ctx)

	sent := conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, `{"Burglar":"1"}`, sent[1])
	assert.False(t, r.alarm.IsTriggered(), "reported trigger is reset")
	// open, first sync, trigger
	assert.Equal(t, []int{0, 0, 1}, r.led.Writes()[:3], "led follows the trigger")

	// The reset itself is not echoed to the client.
	r.loop.step(r.ctx)
	assert.Len(t, conn.Sent(), 2)
	assert.Equal(t, 0, r.led.Writes()[len(r.led.Writes())-1])
}

func TestTriggerLatchedUntilClientConnects(t *testing.T) {
	r := newRig(t, 100, 30)
	r.alarm.Arm()
	r.alarm.Trigger()

	for i := 0; i < 5; i++ {
		r.loop.step(r.ctx)
	}
	assert.True(t, r.alarm.IsTriggered())

	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	r.loop.step(r.ctx)

	assert.Equal(t, []string{`{"TempIst":"20","Heizung":"0","Burglar":"1"}`}, conn.Sent())
	assert.False(t, r.alarm.IsTriggered())
}

func TestSensorFailureKeepsAlarmFlowing(t *testing.T) {
	r := newRig(t, 2, 30)
	r.sensor.ReadError = errors.New("i2c nack")
	r.alarm.Arm()
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	r.loop.step(r.ctx)
	assert.Equal(t, []string{`{"Heizung":"0","Burglar":"0"}`}, conn.Sent())

	r.alarm.Trigger()
	for i := 0; i < 5; i++ {
		r.loop.step(r.ctx)
	}
	assert.Equal(t, `{"Burglar":"1"}`, conn.Sent()[1])
	assert.Equal(t, 0, r.get(t, house.Heater), "no switching without a temperature")
	assert.Empty(t, r.mirror.got, "nothing mirrored without a temperature")
}

func TestMirrorOnlyOnChange(t *testing.T) {
	r := newRig(t, 2, 28)

	r.loop.step(r.ctx)
	r.loop.step(r.ctx) // heater switches on here
	r.loop.step(r.ctx)

	require.Len(t, r.mirror.got, 2)
	assert.Equal(t, logic.AllFlags, r.mirror.got[0].Flags)
	assert.Equal(t, 18, r.mirror.got[0].Measured)
	assert.Equal(t, logic.Flags{Heater: true}, r.mirror.got[1].Flags)
	assert.Equal(t, 100, r.mirror.got[1].Heater)
}

func TestMirrorErrorDoesNotStopLoop(t *testing.T) {
	r := newRig(t, 100, 30)
	r.mirror.err = errors.New("broker down")
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)

	r.loop.step(r.ctx)
	assert.Len(t, conn.Sent(), 1)
}

func TestTrackerUpdated(t *testing.T) {
	r := newRig(t, 100, 30)
	conn := transport.NewFakeConn("10.0.0.2:4000")
	r.loop.accept(r.ctx, conn)
	conn.Push([]byte(`{"Leuchter":"35"}`))
	r.loop.step(r.ctx)

	snap := r.tracker.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, 35, snap.House.LampB)
	assert.Equal(t, 20, snap.House.MeasuredTemperature)
	assert.Equal(t, uint64(1), snap.Counters.FramesSent)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, 100, 30)
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	conns := make(chan transport.Conn)
	conn := transport.NewFakeConn("10.0.0.2:4000")

	done := make(chan error, 1)
	go func() { done <- r.loop.Run(ctx, tick, conns) }()

	conns <- conn
	tick <- epoch
	tick <- epoch
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, conn.Closed(), "active connection closed on shutdown")
	assert.Len(t, conn.Sent(), 1)
}
