package guide

import (
	"encoding/json"
	"time"
)

// ChannelRef is anything that identifies a channel: a bare ID or a Channel
// obtained from GetChannels.
type ChannelRef interface {
	ChannelID() string
}

// ID is a bare channel identifier.
type ID string

// ChannelID implements ChannelRef.
func (id ID) ChannelID() string { return string(id) }

// Refs converts a slice of concrete refs (e.g. []Channel or []ID) for the
// batch operations.
func Refs[T ChannelRef](xs []T) []ChannelRef {
	refs := make([]ChannelRef, len(xs))
	for i, x := range xs {
		refs[i] = x
	}
	return refs
}

// Schedule is the ordered list of programs of one channel for one
// broadcast date.
type Schedule struct {
	channelID string
	date      time.Time
	programs  []Program
}

func (s *Schedule) ChannelID() string { return s.channelID }

// Date returns the broadcast date at midnight UTC.
func (s *Schedule) Date() time.Time { return s.date }

// Programs returns the programs in provider order.
func (s *Schedule) Programs() []Program {
	return append([]Program(nil), s.programs...)
}

// Len returns the number of programs.
func (s *Schedule) Len() int { return len(s.programs) }

// scheduleWire is one element of the dayviews response array.
type scheduleWire struct {
	ID       *string    `json:"id"`
	Programs *[]Program `json:"programs"`
}

func (w *scheduleWire) UnmarshalJSON(b []byte) error {
	type plain scheduleWire
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return decodeErr("decode schedule", err)
	}
	switch {
	case p.ID == nil:
		return decodeErr("decode schedule", missingField("id"))
	case p.Programs == nil:
		return decodeErr("decode schedule", missingField("programs"))
	}
	*w = scheduleWire(p)
	return nil
}

// broadcastDate returns the calendar date of t in t's location, as
// midnight UTC.
func broadcastDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
