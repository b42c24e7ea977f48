package mqtt

import (
	"context"

	"github.com/sweeney/webhouse/internal/logger"
)

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool

	// latestOnly marks state snapshots: a newer one on the same topic
	// replaces it while queued.
	latestOnly bool
}

// outbox holds messages published while the broker is unreachable and
// hands them back in publish order on reconnect.
//
// Telemetry is retained state, so only the newest snapshot per topic is
// kept; a long outage costs one telemetry message, not the whole queue.
// System events queue individually and the oldest is dropped once capacity
// is reached. Not safe for concurrent use; the caller synchronizes.
type outbox struct {
	queue    []bufferedMsg
	capacity int

	dropped    int
	superseded int
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		queue:    make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.latestOnly {
		for i, queued := range o.queue {
			if queued.latestOnly && queued.topic == msg.topic {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				o.superseded++
				break
			}
		}
	}

	if len(o.queue) == o.capacity {
		if o.dropped == 0 {
			logger.Warnf(context.Background(), "mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.queue = append(o.queue[:0], o.queue[1:]...)
		o.dropped++
	}
	o.queue = append(o.queue, msg)
}

// drain empties the outbox, oldest first.
func (o *outbox) drain() []bufferedMsg {
	if len(o.queue) == 0 {
		return nil
	}
	if o.dropped > 0 || o.superseded > 0 {
		logger.Debugf(context.Background(), "mqtt: outbox dropped %d and superseded %d messages", o.dropped, o.superseded)
	}

	out := make([]bufferedMsg, len(o.queue))
	copy(out, o.queue)
	o.queue = o.queue[:0]
	o.dropped = 0
	o.superseded = 0
	return out
}

func (o *outbox) len() int {
	return len(o.queue)
}
