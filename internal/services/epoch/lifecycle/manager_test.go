package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/storage"
)

// callLog records cross-component call order for invariant checks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeSource struct {
	mu           sync.Mutex
	epochs       map[int64]domain.Epoch
	fetchErr     map[int64]error
	states       map[int64]domain.State
	stateErr     map[int64]error
	events       map[int64]chan source.Event
	liveSubs     map[int64]int
	totalSubs    map[int64]int
	unsubscribed []int64
	closeStreams bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		epochs:    make(map[int64]domain.Epoch),
		fetchErr:  make(map[int64]error),
		states:    make(map[int64]domain.State),
		stateErr:  make(map[int64]error),
		events:    make(map[int64]chan source.Event),
		liveSubs:  make(map[int64]int),
		totalSubs: make(map[int64]int),
	}
}

func (f *fakeSource) setEpoch(epoch domain.Epoch) {
	f.mu.Lock()
	f.epochs[epoch.ID] = epoch
	f.mu.Unlock()
}

func (f *fakeSource) FetchEpoch(ctx context.Context, id int64) (domain.Epoch, error) {
	if err := ctx.Err(); err != nil {
		return domain.Epoch{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fetchErr[id]; ok {
		return domain.Epoch{}, err
	}
	epoch, ok := f.epochs[id]
	if !ok {
		return domain.Epoch{}, domain.NotFoundError(id)
	}
	return epoch, nil
}

func (f *fakeSource) FetchEpochState(ctx context.Context, id int64) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.StateUnknown, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.stateErr[id]; ok {
		return domain.StateUnknown, err
	}
	if state, ok := f.states[id]; ok {
		return state, nil
	}
	if epoch, ok := f.epochs[id]; ok {
		return epoch.StateAt(time.Now()), nil
	}
	return domain.StateUnknown, nil
}

func (f *fakeSource) SubscribeEpochEvents(ctx context.Context, id int64) (<-chan source.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan source.Event, 16)
	f.mu.Lock()
	if f.closeStreams {
		f.totalSubs[id]++
		f.mu.Unlock()
		close(ch)
		return ch, nil
	}
	f.events[id] = ch
	f.liveSubs[id]++
	f.totalSubs[id]++
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.liveSubs[id]--
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *fakeSource) UnsubscribeEpochEvents(id int64) {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, id)
	f.mu.Unlock()
}

func (f *fakeSource) push(id int64, ev source.Event) {
	f.mu.Lock()
	ch := f.events[id]
	f.mu.Unlock()
	if ch != nil {
		ch <- ev
	}
}

func (f *fakeSource) liveSubscriptions(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveSubs[id]
}

func (f *fakeSource) totalSubscriptions(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalSubs[id]
}

func (f *fakeSource) unsubscribeCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.unsubscribed {
		if u == id {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu       sync.Mutex
	cached   map[int64][]storage.Entry
	bulk     [][]int64
	nextID   int64
	log      *callLog
	purgeErr error
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{cached: make(map[int64][]storage.Entry), log: log}
}

func (s *fakeStore) PutEntry(ctx context.Context, entry storage.Entry) (storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.cached[entry.EpochID] = append(s.cached[entry.EpochID], entry)
	return entry, nil
}

func (s *fakeStore) EntriesForEpoch(ctx context.Context, epochID int64) ([]storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Entry(nil), s.cached[epochID]...), nil
}

func (s *fakeStore) CachedEpochIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := range s.cached {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) PurgeEpoch(ctx context.Context, epochID int64) error {
	s.mu.Lock()
	err := s.purgeErr
	if err == nil {
		delete(s.cached, epochID)
	}
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(fmt.Sprintf("purge:%d", epochID))
	}
	return err
}

func (s *fakeStore) PurgeExpiredEpochs(ctx context.Context, epochIDs []int64) error {
	s.mu.Lock()
	s.bulk = append(s.bulk, append([]int64(nil), epochIDs...))
	for _, id := range epochIDs {
		delete(s.cached, id)
	}
	s.mu.Unlock()
	return nil
}

func newTestManager(t *testing.T, src *fakeSource, store *fakeStore, sink Sink) *Manager {
	t.Helper()
	m := NewManager(src, store, sink, nil)
	m.coarseTick = 10 * time.Millisecond
	m.fineTick = 5 * time.Millisecond
	m.fineWindow = 50 * time.Millisecond
	m.closedPoll = time.Hour // keep closed epochs quiet unless a test opts in
	t.Cleanup(m.Close)
	return m
}

func activeEpoch(id int64, now time.Time) domain.Epoch {
	return domain.Epoch{
		ID:         id,
		Exists:     true,
		StartsAt:   now.Add(-time.Minute),
		EndsAt:     now.Add(time.Hour),
		Capability: domain.CapabilityEphemeralData,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestActivateAlreadyActiveFiresImmediately(t *testing.T) {
	log := &callLog{}
	src := newFakeSource()
	m := newTestManager(t, src, newFakeStore(log), nil)

	m.AddObserver(Observer{EpochDidActivate: func(id int64) {
		log.add(fmt.Sprintf("activate:%d", id))
	}})

	m.ActivateEpoch(activeEpoch(7, time.Now()))

	if log.count("activate:7") != 1 {
		t.Fatalf("activate notifications = %d, want 1", log.count("activate:7"))
	}
	if id, ok := m.FocusedEpoch(); !ok || id != 7 {
		t.Fatalf("focused = %d, %v; want 7, true", id, ok)
	}
	snap, ok := m.Snapshot(7)
	if !ok || !snap.Active {
		t.Fatalf("snapshot = %+v, %v; want active entry", snap, ok)
	}
}

func TestActivateScheduledDoesNotFire(t *testing.T) {
	log := &callLog{}
	src := newFakeSource()
	m := newTestManager(t, src, newFakeStore(log), nil)

	m.AddObserver(Observer{EpochDidActivate: func(id int64) {
		log.add(fmt.Sprintf("activate:%d", id))
	}})

	epoch := activeEpoch(7, time.Now())
	epoch.StartsAt = time.Now().Add(time.Hour)
	m.ActivateEpoch(epoch)

	if n := log.count("activate:7"); n != 0 {
		t.Fatalf("activate notifications = %d, want 0", n)
	}
}

func TestActivateTwiceKeepsOneSubscription(t *testing.T) {
	log := &callLog{}
	src := newFakeSource()
	m := newTestManager(t, src, newFakeStore(log), nil)

	m.AddObserver(Observer{EpochDidActivate: func(id int64) {
		log.add(fmt.Sprintf("activate:%d", id))
	}})

	epoch := activeEpoch(7, time.Now())
	src.setEpoch(epoch)
	m.ActivateEpoch(epoch)
	waitFor(t, time.Second, func() bool { return src.liveSubscriptions(7) == 1 })

	m.ActivateEpoch(epoch)
	// The replacement subscription comes up and the prior one is cancelled.
	waitFor(t, time.Second, func() bool { return src.liveSubscriptions(7) == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := src.liveSubscriptions(7); n != 1 {
		t.Fatalf("live subscriptions = %d, want 1", n)
	}
	if !m.Monitored(7) {
		t.Fatal("epoch should still be monitored")
	}
	// Re-activating an already-active epoch must not announce it again.
	if n := log.count("activate:7"); n != 1 {
		t.Fatalf("activate notifications = %d, want 1", n)
	}
}

func TestDeactivateStopsMonitoring(t *testing.T) {
	src := newFakeSource()
	m := newTestManager(t, src, newFakeStore(&callLog{}), nil)

	epoch := activeEpoch(7, time.Now())
	src.setEpoch(epoch)
	m.ActivateEpoch(epoch)
	waitFor(t, time.Second, func() bool { return src.liveSubscriptions(7) == 1 })

	m.DeactivateEpoch(7)

	if m.Monitored(7) {
		t.Fatal("epoch should not be monitored after deactivation")
	}
	if _, ok := m.FocusedEpoch(); ok {
		t.Fatal("focus should be cleared")
	}
	if src.unsubscribeCount(7) != 1 {
		t.Fatalf("unsubscribe calls = %d, want 1", src.unsubscribeCount(7))
	}
	waitFor(t, time.Second, func() bool { return src.liveSubscriptions(7) == 0 })

	// Deactivating an unmonitored id is a no-op.
	m.DeactivateEpoch(7)
	if src.unsubscribeCount(7) != 1 {
		t.Fatal("repeat deactivation should not unsubscribe again")
	}
}

func TestUpdatePresence(t *testing.T) {
	log := &callLog{}
	src := newFakeSource()
	m := newTestManager(t, src, newFakeStore(log), nil)

	var gotPresence source.Presence
	var mu sync.Mutex
	m.AddObserver(Observer{PresenceDidUpdate: func(p source.Presence, id int64) {
		mu.Lock()
		gotPresence = p
		mu.Unlock()
		log.add(fmt.Sprintf("presence:%d", id))
	}})

	m.ActivateEpoch(activeEpoch(7, time.Now()))
	presence := source.Presence{EpochID: 7, Joined: true, Visible: true}
	m.UpdatePresence(presence, 7)

	if log.count("presence:7") != 1 {
		t.Fatalf("presence notifications = %d, want 1", log.count("presence:7"))
	}
	mu.Lock()
	if !gotPresence.Joined {
		t.Fatal("observer should receive the stored presence")
	}
	mu.Unlock()
	snap, _ := m.Snapshot(7)
	if !snap.HasPresence || !snap.Presence.Visible {
		t.Fatalf("snapshot presence = %+v", snap.Presence)
	}

	// Presence for an unmonitored epoch is dropped silently.
	m.UpdatePresence(presence, 99)
	if log.count("presence:99") != 0 {
		t.Fatal("unmonitored epoch should not fan out presence")
	}
}

func TestStartupCleanupPurgesClosedAndUnverifiable(t *testing.T) {
	src := newFakeSource()
	store := newFakeStore(&callLog{})
	m := newTestManager(t, src, store, nil)

	for _, id := range []int64{1, 2, 3} {
		if _, err := store.PutEntry(context.Background(), storage.Entry{EpochID: id, Kind: "photo", PayloadPath: "p"}); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
	src.states[1] = domain.StateClosed
	src.states[2] = domain.StateActive
	src.stateErr[3] = domain.NetworkError("registry unreachable", nil)

	if err := m.PerformStartupCleanup(context.Background()); err != nil {
		t.Fatalf("startup cleanup: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.bulk) != 1 {
		t.Fatalf("bulk purges = %d, want 1", len(store.bulk))
	}
	purged := map[int64]bool{}
	for _, id := range store.bulk[0] {
		purged[id] = true
	}
	if len(purged) != 2 || !purged[1] || !purged[3] {
		t.Fatalf("purged = %v, want {1, 3}", store.bulk[0])
	}
	if _, stillCached := store.cached[2]; !stillCached {
		t.Fatal("active epoch 2 must keep its cache")
	}
}

func TestStartupCleanupNoExpired(t *testing.T) {
	src := newFakeSource()
	store := newFakeStore(&callLog{})
	m := newTestManager(t, src, store, nil)

	if _, err := store.PutEntry(context.Background(), storage.Entry{EpochID: 5, Kind: "photo", PayloadPath: "p"}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	src.states[5] = domain.StateActive

	if err := m.PerformStartupCleanup(context.Background()); err != nil {
		t.Fatalf("startup cleanup: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.bulk) != 0 {
		t.Fatalf("bulk purges = %d, want 0", len(store.bulk))
	}
}
