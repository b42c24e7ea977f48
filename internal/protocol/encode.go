package protocol

import (
	"bytes"
	"strconv"

	"github.com/sweeney/webhouse/internal/logic"
)

// Telemetry is the set of values the controller reports, plus which of them
// changed.
type Telemetry struct {
	Flags    logic.Flags
	Measured int
	Heater   int
	Burglar  bool
}

// Encode builds a frame holding only the flagged values, in the order
// TempIst, Heizung, Burglar. It returns nil when nothing is flagged.
func Encode(t Telemetry) []byte {
	if !t.Flags.Any() {
		return nil
	}

	var b bytes.Buffer
	b.WriteByte('{')
	field := func(key, value string) {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(key)
		b.WriteString(`":"`)
		b.WriteString(value)
		b.WriteByte('"')
	}

	if t.Flags.Temperature {
		field(KeyMeasured, strconv.Itoa(t.Measured))
	}
	if t.Flags.Heater {
		field(KeyHeater, strconv.Itoa(t.Heater))
	}
	if t.Flags.Alarm {
		burglar := "0"
		if t.Burglar {
			burglar = "1"
		}
		field(KeyBurglar, burglar)
	}

	b.WriteByte('}')
	return b.Bytes()
}
