// Package timex provides a JSON-friendly wrapper around time.Duration that
// accepts both string forms ("15m", "1h30m") and integer nanoseconds.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Duration embeds time.Duration and implements json.Unmarshaler/Marshaler so
// configuration files can express intervals naturally.
type Duration struct {
	time.Duration
}

// MarshalJSON renders the duration in its string form, e.g. "15m0s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a number (nanoseconds) or a string parsable by
// time.ParseDuration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}
