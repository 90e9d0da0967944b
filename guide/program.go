package guide

import (
	"encoding/json"
	"fmt"
	"time"
)

// Program is one scheduled broadcast entry. It carries no reference to the
// channel it airs on; callers keep that association through Schedule.
type Program struct {
	id             string
	title          string
	categories     []string
	availableAsVOD bool
	rerun          bool
	premiere       bool
	live           bool
	startsAt       time.Time
	endsAt         time.Time
}

type programWire struct {
	ID             *string   `json:"id"`
	Title          *string   `json:"title"`
	Categories     *[]string `json:"categories"`
	AvailableAsVOD *bool     `json:"availableAsVod"`
	Rerun          *bool     `json:"rerun"`
	Premiere       *bool     `json:"premiere"`
	Live           *bool     `json:"live"`
	Start          *nanotime `json:"start"`
	Stop           *nanotime `json:"stop"`
}

// nanotime is a timestamp encoded as an integer count of nanoseconds since
// the Unix epoch.
type nanotime int64

func (n *nanotime) UnmarshalJSON(b []byte) error {
	var i int64
	if err := json.Unmarshal(b, &i); err != nil {
		return fmt.Errorf("malformed timestamp %s: want integer nanoseconds since epoch", b)
	}
	*n = nanotime(i)
	return nil
}

func (n nanotime) Time() time.Time {
	return time.Unix(0, int64(n)).UTC()
}

func toNanotime(t time.Time) *nanotime {
	n := nanotime(t.UnixNano())
	return &n
}

// ID returns the provider's program id.
func (p Program) ID() string { return p.id }

// Title returns the program title.
func (p Program) Title() string { return p.title }

// Categories returns the category labels in provider order.
func (p Program) Categories() []string {
	return append([]string(nil), p.categories...)
}

// AvailableAsVOD reports whether the program can be streamed on demand.
func (p Program) AvailableAsVOD() bool { return p.availableAsVOD }

// Rerun reports whether the broadcast is a repeat.
func (p Program) Rerun() bool { return p.rerun }

// Premiere reports whether the broadcast is a first showing.
func (p Program) Premiere() bool { return p.premiere }

// Live reports whether the program is broadcast live.
func (p Program) Live() bool { return p.live }

// StartsAt returns the start time in UTC.
func (p Program) StartsAt() time.Time { return p.startsAt }

// EndsAt returns the end time in UTC.
func (p Program) EndsAt() time.Time { return p.endsAt }

// Duration returns EndsAt - StartsAt. It is negative when the provider
// sent a stop before the start.
func (p Program) Duration() time.Duration {
	return p.endsAt.Sub(p.startsAt)
}

// UnmarshalJSON decodes the wire form. Every field is required;
// categories may be an empty array but not null.
func (p *Program) UnmarshalJSON(b []byte) error {
	var w programWire
	if err := json.Unmarshal(b, &w); err != nil {
		return decodeErr("decode program", err)
	}
	var missing missingField
	switch {
	case w.ID == nil:
		missing = "id"
	case w.Title == nil:
		missing = "title"
	case w.Categories == nil || *w.Categories == nil:
		missing = "categories"
	case w.AvailableAsVOD == nil:
		missing = "availableAsVod"
	case w.Rerun == nil:
		missing = "rerun"
	case w.Premiere == nil:
		missing = "premiere"
	case w.Live == nil:
		missing = "live"
	case w.Start == nil:
		missing = "start"
	case w.Stop == nil:
		missing = "stop"
	}
	if missing != "" {
		return decodeErr("decode program", missing)
	}
	*p = Program{
		id:             *w.ID,
		title:          *w.Title,
		categories:     *w.Categories,
		availableAsVOD: *w.AvailableAsVOD,
		rerun:          *w.Rerun,
		premiere:       *w.Premiere,
		live:           *w.Live,
		startsAt:       w.Start.Time(),
		endsAt:         w.Stop.Time(),
	}
	return nil
}

// MarshalJSON encodes the program with the provider's field names and
// nanosecond timestamps.
func (p Program) MarshalJSON() ([]byte, error) {
	categories := p.categories
	if categories == nil {
		categories = []string{}
	}
	return json.Marshal(programWire{
		ID:             &p.id,
		Title:          &p.title,
		Categories:     &categories,
		AvailableAsVOD: &p.availableAsVOD,
		Rerun:          &p.rerun,
		Premiere:       &p.premiere,
		Live:           &p.live,
		Start:          toNanotime(p.startsAt),
		Stop:           toNanotime(p.endsAt),
	})
}
