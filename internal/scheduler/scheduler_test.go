package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"postbot/internal/store"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

// fakeState is a minimal StateStore with a single channel queue.
type fakeState struct {
	mu       sync.Mutex
	channel  store.ChannelInfo
	queue    []store.MediaItem
	admins   []int64
	watchers []int64
}

func (f *fakeState) Channels() []store.ChannelInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.channel
	ch.QueueLen = len(f.queue)
	return []store.ChannelInfo{ch}
}

func (f *fakeState) DequeueMedia(_ context.Context, channelID int64) (store.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channelID != f.channel.ID {
		return store.MediaItem{}, store.ErrNotFound
	}
	if len(f.queue) == 0 {
		return store.MediaItem{}, store.ErrQueueEmpty
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	return item, nil
}

func (f *fakeState) QueueLen(int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *fakeState) UsersWithPermission(store.Role) []int64 { return f.admins }
func (f *fakeState) UsersWithChannelAccess(int64) []int64   { return f.watchers }

type fakePublisher struct {
	mu     sync.Mutex
	photos []string
	videos []string
	fail   bool
}

func (f *fakePublisher) SendPhoto(_ context.Context, _ transport.ChatTarget, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("telegram is down")
	}
	f.photos = append(f.photos, path)
	return nil
}

func (f *fakePublisher) SendVideo(_ context.Context, _ transport.ChatTarget, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("telegram is down")
	}
	f.videos = append(f.videos, path)
	return nil
}

func (f *fakePublisher) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.photos) + len(f.videos)
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (f *fakeNotifier) Notify(_ context.Context, userID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, fmt.Sprintf("%d:%s", userID, text))
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

type fakeBlobs struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeBlobs) Release(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, path)
	return nil
}

func newTestService(st *fakeState, pub *fakePublisher, not *fakeNotifier, blobs *fakeBlobs, at time.Time) *Service {
	s := New(Config{
		UTCOffset: 0,
		Jitter:    0,
		LowStock:  2,
		Tick:      30 * time.Second,
		Window:    60 * time.Second,
	}, st, pub, not, blobs, logx.Nop())
	s.now = func() time.Time { return at }
	return s
}

func queued(n int) []store.MediaItem {
	items := make([]store.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, store.MediaItem{
			Location: fmt.Sprintf("/media/channel_1/photo_%d.jpg", i),
			Kind:     transport.MediaPhoto,
		})
	}
	return items
}

func TestTickFiresOncePerSlotPerDay(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel: store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue:   queued(10),
	}
	pub := &fakePublisher{}
	not := &fakeNotifier{}
	blobs := &fakeBlobs{}
	// Ticks land inside the 10:00 window repeatedly.
	s := newTestService(st, pub, not, blobs, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	for i := 0; i < 5; i++ {
		s.Tick(context.Background())
	}
	if got := pub.sent(); got != 1 {
		t.Fatalf("published %d times within one window, want 1", got)
	}
	if len(blobs.released) != 1 {
		t.Fatalf("released %d blobs, want 1", len(blobs.released))
	}

	// The next day the slot is eligible again.
	s.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 10, 0, time.UTC) }
	s.Tick(context.Background())
	if got := pub.sent(); got != 2 {
		t.Fatalf("published %d times across two days, want 2", got)
	}
}

func TestTickSkipsOutsideWindow(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel: store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue:   queued(5),
	}
	pub := &fakePublisher{}
	s := newTestService(st, pub, &fakeNotifier{}, &fakeBlobs{}, time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC))

	s.Tick(context.Background())
	if got := pub.sent(); got != 0 {
		t.Fatalf("published %d times outside the window, want 0", got)
	}
}

func TestTickEmptyQueueNotifiesAdminsEveryTick(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel: store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		admins:  []int64{1, 2},
	}
	pub := &fakePublisher{}
	not := &fakeNotifier{}
	s := newTestService(st, pub, not, &fakeBlobs{}, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	s.Tick(context.Background())
	s.Tick(context.Background())

	// The slot never fires, so the alert repeats on every tick in the
	// window, to both admins each time.
	if got := not.count(); got != 4 {
		t.Fatalf("sent %d alerts, want 4", got)
	}
	for _, n := range not.notes {
		if !strings.Contains(n, "no media to post") {
			t.Fatalf("unexpected notification %q", n)
		}
	}
	if pub.sent() != 0 {
		t.Fatal("published from an empty queue")
	}
}

func TestTickLowStockNotifiesChannelUsers(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel:  store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue:    queued(3), // one publish leaves 2 == threshold
		watchers: []int64{7, 8, 9},
	}
	not := &fakeNotifier{}
	s := newTestService(st, &fakePublisher{}, not, &fakeBlobs{}, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	s.Tick(context.Background())
	if got := not.count(); got != 3 {
		t.Fatalf("sent %d low-stock alerts, want 3", got)
	}
	for _, n := range not.notes {
		if !strings.Contains(n, "down to 2 queued media") {
			t.Fatalf("unexpected notification %q", n)
		}
	}
}

func TestTickNoLowStockAboveThreshold(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel:  store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue:    queued(10),
		watchers: []int64{7},
	}
	not := &fakeNotifier{}
	s := newTestService(st, &fakePublisher{}, not, &fakeBlobs{}, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	s.Tick(context.Background())
	if got := not.count(); got != 0 {
		t.Fatalf("sent %d alerts with a full queue, want 0", got)
	}
}

func TestTickPublishFailureLeavesSlotUnfired(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel: store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue:   queued(5),
	}
	pub := &fakePublisher{fail: true}
	blobs := &fakeBlobs{}
	s := newTestService(st, pub, &fakeNotifier{}, blobs, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	s.Tick(context.Background())
	if pub.sent() != 0 {
		t.Fatal("publish recorded despite failure")
	}
	if len(blobs.released) != 0 {
		t.Fatal("blob released despite failed publish")
	}

	// Transport recovers within the same window: the slot fires.
	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	s.Tick(context.Background())
	if got := pub.sent(); got != 1 {
		t.Fatalf("published %d times after recovery, want 1", got)
	}
}

func TestTickSendsVideoForVideoItems(t *testing.T) {
	t.Parallel()
	st := &fakeState{
		channel: store.ChannelInfo{ID: -100, Name: "memes", PostTimes: []string{"10:00"}},
		queue: []store.MediaItem{
			{Location: "/media/channel_1/video_0.mp4", Kind: transport.MediaVideo},
		},
	}
	pub := &fakePublisher{}
	s := newTestService(st, pub, &fakeNotifier{}, &fakeBlobs{}, time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC))

	s.Tick(context.Background())
	if len(pub.videos) != 1 || len(pub.photos) != 0 {
		t.Fatalf("videos=%d photos=%d, want 1/0", len(pub.videos), len(pub.photos))
	}
}
