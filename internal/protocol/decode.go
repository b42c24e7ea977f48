package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Decode returns the last complete object in buf as a Command.
//
// Every '{' is tried as an object start. Of the candidates that parse, the
// one ending last wins, and among those the one starting first, so a nested
// object never shadows its parent. Unknown keys are ignored, keys whose
// values are not integers are skipped.
func Decode(buf []byte) (Command, error) {
	var (
		best    map[string]json.RawMessage
		bestEnd = -1
		lastErr error
	)

	for start := bytes.LastIndexByte(buf, '{'); start >= 0; start = bytes.LastIndexByte(buf[:start], '{') {
		obj, end, err := decodeObject(buf[start:])
		if err != nil {
			lastErr = err
			continue
		}
		end += start
		if end >= bestEnd {
			best, bestEnd = obj, end
		}
	}

	if best == nil {
		return Command{}, &DecodeError{Len: len(buf), Cause: lastErr}
	}
	return commandFrom(best), nil
}

func decodeObject(b []byte) (map[string]json.RawMessage, int, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, 0, err
	}
	return obj, int(dec.InputOffset()), nil
}

func commandFrom(obj map[string]json.RawMessage) Command {
	var cmd Command

	if raw, ok := obj[KeyTV]; ok {
		var s string
		on := json.Unmarshal(raw, &s) == nil && s == TVOn
		cmd.TV = &on
	}
	cmd.LampA = intValue(obj, KeyLampA)
	cmd.LampB = intValue(obj, KeyLampB)
	cmd.Target = intValue(obj, KeyTarget)

	return cmd
}

// intValue accepts "50" as well as 50.
func intValue(obj map[string]json.RawMessage, key string) *int {
	raw, ok := obj[key]
	if !ok {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		text = n.String()
	}

	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil
	}
	return &v
}
