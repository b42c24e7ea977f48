// Package history records telemetry changes in InfluxDB.
//
// Writes are non-blocking and batched by the client library; asynchronous
// write failures are logged.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/webhouse/internal/logger"
	"github.com/sweeney/webhouse/internal/protocol"
)

// Measurement is the InfluxDB measurement every point is written to.
const Measurement = "webhouse"

const (
	connectTimeout = 10 * time.Second
	batchSize      = 50
	flushInterval  = 5000 // ms
)

// Config addresses the InfluxDB bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder mirrors telemetry into InfluxDB. Safe for concurrent use.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
}

// Connect creates the client and verifies the server answers a ping.
func Connect(ctx context.Context, cfg Config) (*Recorder, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushInterval))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	r := &Recorder{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go r.logErrors(r.writeAPI.Errors())

	return r, nil
}

func (r *Recorder) logErrors(errs <-chan error) {
	for err := range errs {
		logger.Warnf(context.Background(), "history: write: %v", err)
	}
}

// Mirror queues one point holding the reported values.
func (r *Recorder) Mirror(_ context.Context, at time.Time, t protocol.Telemetry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return ErrNotConnected
	}
	r.writeAPI.WritePoint(Point(at, t))
	return nil
}

// IsConnected reports whether the recorder accepts points.
func (r *Recorder) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Close flushes pending points and releases the client.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil
	}
	r.connected = false
	r.mu.Unlock()

	r.writeAPI.Flush()
	r.client.Close()
	return nil
}

// Point builds the InfluxDB point for a telemetry update. Every value is
// written; the changed tag lists which of them triggered the write.
func Point(at time.Time, t protocol.Telemetry) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{"changed": changedTag(t)},
		map[string]interface{}{
			"measured_temperature": t.Measured,
			"heater":               t.Heater,
			"burglar":              t.Burglar,
		},
		at,
	)
}

func changedTag(t protocol.Telemetry) string {
	var names []string
	if t.Flags.Temperature {
		names = append(names, "temperature")
	}
	if t.Flags.Heater {
		names = append(names, "heater")
	}
	if t.Flags.Alarm {
		names = append(names, "burglar")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}
