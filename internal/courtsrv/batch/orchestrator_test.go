package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/cache"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

const availableRaw = `jQuery('#step-2').html('<div class=\"alert-success\"><\/div><span>מגרש: 3<\/span>` +
	`<a href=\"\/b?court_id=101&amp;duration=1.0&amp;end_time=09%3A00&amp;start_time=08%3A00\">x<\/a>');`

const noCourtsRaw = `jQuery('#step-2').html('<p>נסה מועד אחר<\/p><h3>10:00-11:00<\/h3>');`

type fakeProber struct {
	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	fail        map[string]error
	delay       time.Duration
}

func (f *fakeProber) ProbeSlot(ctx context.Context, venue, date, at string, s upstream.Session) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.fail[at]; err != nil {
		return "", err
	}
	if at == "08:00" {
		return availableRaw, nil
	}
	return noCourtsRaw, nil
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRequest(slots ...string) Request {
	return Request{
		Venue:     "12",
		Date:      "04/12/2024",
		TimeSlots: slots,
		Session:   upstream.Session{SessionToken: "s", CSRFToken: "c"},
	}
}

func newTestOrchestrator(p Prober, store cache.Store) (*Orchestrator, *[]time.Duration) {
	o := New(p, store, Options{GroupSize: 3, GroupDelay: 100 * time.Millisecond, TTL: 600 * time.Second})
	var pauses []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return o, &pauses
}

func TestRunCompleteness(t *testing.T) {
	p := &fakeProber{
		fail:  map[string]error{"11:00": fmt.Errorf("connection reset")},
		delay: 5 * time.Millisecond,
	}
	store := cache.NewMemory()
	o, pauses := newTestOrchestrator(p, store)

	slots := []string{"07:00", "08:00", "09:00", "10:00", "11:00", "12:00", "13:00"}
	var events []Event
	results, err := o.Run(context.Background(), testRequest(slots...), func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	require.Len(t, results, len(slots))
	for _, s := range slots {
		assert.Contains(t, results, s)
	}
	assert.Equal(t, availability.StatusAvailable, results["08:00"].Status)
	assert.Equal(t, []int{3}, results["08:00"].Courts)
	assert.Equal(t, availability.StatusNoCourts, results["07:00"].Status)
	assert.Equal(t, []string{"10:00"}, results["07:00"].SuggestedTimes)
	assert.Equal(t, availability.StatusError, results["11:00"].Status)
	assert.Equal(t, "connection reset", results["11:00"].Error)

	assert.LessOrEqual(t, p.maxInFlight, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, *pauses)

	require.Len(t, events, len(slots)+1)
	for i, s := range slots {
		assert.Equal(t, EventResult, events[i].Type)
		assert.Equal(t, s, events[i].TimeSlot)
		assert.False(t, events[i].Final())
	}
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Type)
	assert.True(t, last.Final())
	assert.Equal(t, results, last.Results)

	// written to the cache despite the failed slot
	entry, ok, err := store.Get(context.Background(), "12:04/12/2024")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, entry.Results)
}

// gatedUpstream holds each gated slot until its gate is closed and reports
// every start on started.
type gatedUpstream struct {
	started chan string
	gates   map[string]chan struct{}
}

func (g *gatedUpstream) ProbeSlot(ctx context.Context, venue, date, at string, s upstream.Session) (string, error) {
	g.started <- at
	if gate, ok := g.gates[at]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return noCourtsRaw, nil
}

func TestRunGroupsAreSequential(t *testing.T) {
	p := &gatedUpstream{
		started: make(chan string, 5),
		gates: map[string]chan struct{}{
			"07:00": make(chan struct{}),
			"08:00": make(chan struct{}),
			"09:00": make(chan struct{}),
		},
	}
	o, _ := newTestOrchestrator(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, testRequest("07:00", "08:00", "09:00", "10:00", "11:00"), nil)
		done <- err
	}()

	next := func() string {
		select {
		case at := <-p.started:
			return at
		case <-time.After(time.Second):
			t.Fatal("no slot started")
			return ""
		}
	}
	noneStarted := func(msg string) {
		select {
		case at := <-p.started:
			t.Fatalf("%s started %s", msg, at)
		case <-time.After(50 * time.Millisecond):
		}
	}

	first := []string{next(), next(), next()}
	assert.ElementsMatch(t, []string{"07:00", "08:00", "09:00"}, first)
	noneStarted("blocked first group")

	close(p.gates["07:00"])
	close(p.gates["08:00"])
	noneStarted("partly settled first group")

	close(p.gates["09:00"])
	second := []string{next(), next()}
	assert.ElementsMatch(t, []string{"10:00", "11:00"}, second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not finish")
	}
}

func TestRunDeduplicatesSlots(t *testing.T) {
	p := &fakeProber{}
	o, _ := newTestOrchestrator(p, nil)

	results, err := o.Run(context.Background(), testRequest("08:00", "08:00", "09:00"), nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, p.callCount())
}

func TestSearchCacheHitSkipsUpstream(t *testing.T) {
	p := &fakeProber{}
	store := cache.NewMemory()
	cached := availability.Results{"08:00": availability.NoCourts()}
	require.NoError(t, store.Put(context.Background(), "12:04/12/2024", cached, time.Minute))
	o, _ := newTestOrchestrator(p, store)

	var events []Event
	out, err := o.Search(context.Background(), testRequest("08:00", "09:00"), func(e Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, cached, out.Results)
	assert.Equal(t, 0, p.callCount())
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Type)
	assert.True(t, events[0].Cached)

	b, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","unitId":"12","date":"04/12/2024","cached":true,"results":{"08:00":{"status":"no-courts","courts":[],"slots":[]}}}`, string(b))
}

func TestSearchMissRuns(t *testing.T) {
	p := &fakeProber{}
	o, _ := newTestOrchestrator(p, cache.NewMemory())

	out, err := o.Search(context.Background(), testRequest("08:00"), nil)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, 1, p.callCount())

	out, err = o.Search(context.Background(), testRequest("08:00"), nil)
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, 1, p.callCount())
}

func TestRunCancelled(t *testing.T) {
	p := &fakeProber{}
	store := cache.NewMemory()
	o, _ := newTestOrchestrator(p, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var events []Event
	results, err := o.Run(ctx, testRequest("07:00", "08:00", "09:00", "10:00", "11:00"), func(e Event) {
		events = append(events, e)
		if len(events) == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, results, 5)
	assert.Equal(t, availability.StatusError, results["10:00"].Status)
	assert.Equal(t, availability.StatusError, results["11:00"].Status)
	assert.Equal(t, 3, p.callCount())
	assert.Equal(t, EventError, events[len(events)-1].Type)

	_, ok, err := store.Get(context.Background(), "12:04/12/2024")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStream(t *testing.T) {
	p := &fakeProber{}
	o, _ := newTestOrchestrator(p, nil)

	var types []EventType
	for e := range o.Stream(context.Background(), testRequest("07:00", "08:00", "09:00", "10:00")) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventResult, EventResult, EventResult, EventResult, EventComplete}, types)
}

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(Event{Type: EventResult, TimeSlot: "09:00", Result: availability.NoCourts()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","timeSlot":"09:00","data":{"status":"no-courts","courts":[],"slots":[]}}`, string(b))

	b, err = json.Marshal(Event{Type: EventComplete, Venue: "12", Date: "04/12/2024"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","unitId":"12","date":"04/12/2024","results":{},"cached":false}`, string(b))

	b, err = json.Marshal(Event{Type: EventComplete, Venue: "12", Date: "04/12/2024", Cached: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","unitId":"12","date":"04/12/2024","results":{},"cached":true}`, string(b))

	b, err = json.Marshal(Event{Type: EventError, Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"boom"}`, string(b))
}
