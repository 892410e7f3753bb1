// Package jsontime holds the time types used on the daemon's wire
// protocol. Timestamps travel as Unix milliseconds, durations as Go
// duration strings.
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time encoded as integer Unix milliseconds in JSON.
type Milli time.Time

// Now returns the current time as a Milli.
func Now() Milli {
	return Milli(time.Now())
}

// Time converts back to the standard type.
func (m Milli) Time() time.Time {
	return time.Time(m)
}

// IsZero reports whether m is the zero instant.
func (m Milli) IsZero() bool {
	return time.Time(m).IsZero()
}

func (m Milli) String() string {
	return time.Time(m).String()
}

// MarshalJSON implements json.Marshaler.
func (m Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(m).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Milli) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*m = Milli(time.UnixMilli(ms))
	return nil
}

// Duration is a time.Duration encoded as a string like "1m32s" in
// JSON. Integer nanoseconds are accepted on decode for callers that
// send raw numbers.
type Duration time.Duration

// FromDuration wraps d as an optional wire field.
func FromDuration(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// Duration converts back to the standard type. A nil receiver reads
// as zero so optional fields need no guard.
func (d *Duration) Duration() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Seconds returns the duration in seconds.
func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}
