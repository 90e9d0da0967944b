package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voyagen/tvguide/guide"
	"github.com/voyagen/tvguide/internal/store"
)

const channelsBody = `{"channels":[
{"id":"1","title":"DR1","icon":"i1","logo":"l1","svgLogo":"s1","sort":1},
{"id":"3","title":"TV 2","icon":"i3","logo":"l3","svgLogo":"s3","sort":3},
{"id":"2","title":"DR2","icon":"i2","logo":"l2","svgLogo":"s2","sort":2}]}`

const dayviewsBody = `[
{"id":"1","programs":[
 {"id":"a","title":"Morgen","categories":["Nyheder"],"availableAsVod":false,"rerun":false,"premiere":false,"live":true,"start":100,"stop":200},
 {"id":"b","title":"Middag","categories":[],"availableAsVod":true,"rerun":true,"premiere":false,"live":false,"start":200,"stop":300}]},
{"id":"3","programs":[
 {"id":"c","title":"Aften","categories":[],"availableAsVod":false,"rerun":false,"premiere":true,"live":false,"start":100,"stop":400}]},
{"id":"2","programs":[]}]`

// fakeStore records writes in memory.
type fakeStore struct {
	channels  []string
	schedules map[string]int
	runs      []store.SyncRun
	failOn    string
}

func (f *fakeStore) UpsertChannels(_ context.Context, chs []guide.Channel) error {
	for _, ch := range chs {
		f.channels = append(f.channels, ch.ID())
	}
	return nil
}

func (f *fakeStore) ReplaceSchedule(_ context.Context, s *guide.Schedule) (int, error) {
	if s.ChannelID() == f.failOn {
		return 0, errors.New("disk full")
	}
	if f.schedules == nil {
		f.schedules = map[string]int{}
	}
	f.schedules[s.ChannelID()] = s.Len()
	return s.Len(), nil
}

func (f *fakeStore) RecordSyncRun(_ context.Context, run store.SyncRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) LastSyncRun(_ context.Context, _ time.Time) (*store.SyncRun, error) {
	if len(f.runs) == 0 {
		return nil, store.ErrNotFound
	}
	return &f.runs[len(f.runs)-1], nil
}

// newUpstream serves the channel and dayview fixtures. The returned func
// gives the ch values of the last dayview request.
func newUpstream(t *testing.T, dayviews string) (*guide.Client, func() []string) {
	t.Helper()
	var (
		mu  sync.Mutex
		chs []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/epg/channels":
			io.WriteString(w, channelsBody)
		case strings.HasPrefix(r.URL.Path, "/epg/dayviews/"):
			mu.Lock()
			chs = r.URL.Query()["ch"]
			mu.Unlock()
			io.WriteString(w, dayviews)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return guide.New(guide.WithBaseURL(ts.URL)), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return chs
	}
}

var day = time.Date(2020, time.March, 29, 0, 0, 0, 0, time.UTC)

func TestSyncAllChannels(t *testing.T) {
	src, lastChs := newUpstream(t, dayviewsBody)
	st := &fakeStore{}

	res, err := Sync(context.Background(), src, st, day, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	want := Result{Date: day, Channels: 3, Schedules: 2, Programs: 3, Missing: 1}
	if res != want {
		t.Errorf("Expecting %+v, got %+v", want, res)
	}
	if got := lastChs(); !reflect.DeepEqual(got, []string{"1", "3", "2"}) {
		t.Errorf("Expecting one batch request for all channels, got ch=%v", got)
	}
	if !reflect.DeepEqual(st.schedules, map[string]int{"1": 2, "3": 1}) {
		t.Errorf("Unexpected archived schedules %v", st.schedules)
	}
	if len(st.runs) != 1 || st.runs[0].Programs != 3 || st.runs[0].Missing != 1 {
		t.Errorf("Unexpected sync runs %+v", st.runs)
	}
	if st.runs[0].FinishedAt.Before(st.runs[0].StartedAt) {
		t.Errorf("Run finished before it started: %+v", st.runs[0])
	}
}

func TestSyncSelectedChannels(t *testing.T) {
	src, lastChs := newUpstream(t, dayviewsBody)
	st := &fakeStore{}

	res, err := Sync(context.Background(), src, st, day, []string{"2", "1"})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if res.Channels != 2 || res.Schedules != 1 || res.Missing != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if got := lastChs(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Expecting provider order ch=[1 2], got %v", got)
	}
	if !reflect.DeepEqual(st.channels, []string{"1", "2"}) {
		t.Errorf("Unexpected upserted channels %v", st.channels)
	}
}

func TestSyncUnknownChannel(t *testing.T) {
	src, _ := newUpstream(t, dayviewsBody)
	st := &fakeStore{}

	_, err := Sync(context.Background(), src, st, day, []string{"1", "42"})
	if err == nil || !strings.Contains(err.Error(), `"42"`) {
		t.Fatalf("Expecting an unknown channel error, got %v", err)
	}
	if len(st.channels) != 0 || len(st.runs) != 0 {
		t.Errorf("Nothing should be written, got %v %v", st.channels, st.runs)
	}
}

func TestSyncDecodeFailure(t *testing.T) {
	for _, body := range []string{
		`[{"id":"1","programs":[{"id":"a"}]}]`,
		`null`,
	} {
		src, _ := newUpstream(t, body)
		st := &fakeStore{}

		_, err := Sync(context.Background(), src, st, day, nil)
		if !errors.Is(err, guide.ErrDecode) {
			t.Fatalf("%s: expecting a decode error, got %v", body, err)
		}
		if len(st.schedules) != 0 || len(st.runs) != 0 {
			t.Errorf("%s: expecting no schedules or runs, got %v %v", body, st.schedules, st.runs)
		}
	}
}

func TestSyncStoreFailure(t *testing.T) {
	src, _ := newUpstream(t, dayviewsBody)
	st := &fakeStore{failOn: "3"}

	_, err := Sync(context.Background(), src, st, day, nil)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Expecting the store error, got %v", err)
	}
	if len(st.runs) != 0 {
		t.Errorf("A failed sync must not be recorded, got %v", st.runs)
	}
}

func TestSyncCancelled(t *testing.T) {
	src, _ := newUpstream(t, dayviewsBody)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Sync(ctx, src, &fakeStore{}, day, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expecting context.Canceled, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2020-03-29")
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if !d.Equal(day) || d.Location() != time.UTC {
		t.Errorf("Expecting %s, got %s", day, d)
	}

	for _, s := range []string{"", "29-03-2020", "2020-3-29", "2020-02-30"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("Expecting an error for %q", s)
		}
	}
}
