package router

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"postbot/internal/media"
	"postbot/internal/storage"
	"postbot/internal/store"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

const (
	ownerID     int64 = 100
	moderatorID int64 = 200
	strangerID  int64 = 999
)

type fakeAdapter struct {
	mu        sync.Mutex
	texts     []string
	downloads map[string][]byte
	downErr   error
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, fmt.Sprintf("%d|%s", to.ChatID, text))
	return nil
}

func (f *fakeAdapter) SendPhoto(context.Context, transport.ChatTarget, string, string) error {
	return nil
}

func (f *fakeAdapter) SendVideo(context.Context, transport.ChatTarget, string, string) error {
	return nil
}

func (f *fakeAdapter) Download(_ context.Context, ref transport.FileRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downErr != nil {
		return nil, f.downErr
	}
	b, ok := f.downloads[ref.ID]
	if !ok {
		return nil, errors.New("unknown file")
	}
	return b, nil
}

func (f *fakeAdapter) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatal("no reply sent")
	}
	return f.texts[len(f.texts)-1]
}

func newTestRouter(t *testing.T) (*Router, *store.Store, *fakeAdapter, *media.Library) {
	t.Helper()
	backend, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	lib, err := media.NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}
	st, err := store.Open(context.Background(), backend, lib, ownerID, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}

	fa := &fakeAdapter{downloads: map[string][]byte{}}
	r := New(Config{UTCOffset: 3, Jitter: 5}, st, fa, lib, logx.Nop())
	return r, st, fa, lib
}

func textMsg(from int64, text string) *transport.Message {
	return &transport.Message{ID: 1, ChatID: from, FromID: from, Text: text}
}

func mediaMsg(from int64, fileID string, kind transport.MediaKind) *transport.Message {
	return &transport.Message{ID: 2, ChatID: from, FromID: from, Media: &transport.FileRef{ID: fileID, Kind: kind}}
}

func TestStartShowsRole(t *testing.T) {
	t.Parallel()
	r, _, fa, _ := newTestRouter(t)

	r.handleMessage(context.Background(), textMsg(ownerID, "/start"))
	if got := fa.lastText(t); !strings.Contains(got, "owner") {
		t.Fatalf("start reply %q does not mention the role", got)
	}

	r.handleMessage(context.Background(), textMsg(strangerID, "/start"))
	if got := fa.lastText(t); !strings.Contains(got, "user") {
		t.Fatalf("start reply %q does not mention the role", got)
	}
}

func TestPermissionGating(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.AddUser(ctx, moderatorID, store.RoleModerator); err != nil {
		t.Fatalf("AddUser error: %v", err)
	}

	tests := []struct {
		name string
		from int64
		text string
	}{
		{name: "stranger add media", from: strangerID, text: btnAddMedia},
		{name: "stranger status", from: strangerID, text: btnStatus},
		{name: "moderator manage users", from: moderatorID, text: btnManageUsers},
		{name: "moderator add moderator", from: moderatorID, text: btnAddModerator},
		{name: "moderator manage channels", from: moderatorID, text: btnManageChannels},
		{name: "moderator add channel", from: moderatorID, text: btnAddChannel},
		{name: "admin add admin is owner-only", from: moderatorID, text: btnAddAdmin},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r.handleMessage(ctx, textMsg(tt.from, tt.text))
			if got := fa.lastText(t); !strings.Contains(got, msgNoPermission) {
				t.Fatalf("reply %q, want permission denial", got)
			}
			if _, ok := st.Session(tt.from); ok {
				t.Fatal("denied action left a session behind")
			}
		})
	}
}

func TestUploadFlow(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.CreateChannel(ctx, -100, "memes", "caption", []string{"10:00"}); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}
	if err := st.AddUser(ctx, moderatorID, store.RoleModerator); err != nil {
		t.Fatalf("AddUser error: %v", err)
	}
	if err := st.GrantChannelAccess(ctx, moderatorID, -100); err != nil {
		t.Fatalf("GrantChannelAccess error: %v", err)
	}
	fa.downloads["file-1"] = []byte("jpeg")
	fa.downloads["file-2"] = []byte("mp4")

	r.handleMessage(ctx, textMsg(moderatorID, btnAddMedia))
	r.handleMessage(ctx, textMsg(moderatorID, channelPrefix+"memes"))
	if sess, ok := st.Session(moderatorID); !ok {
		t.Fatal("channel pick did not begin a session")
	} else if am, ok := sess.(store.AddingMedia); !ok || am.Channel != -100 {
		t.Fatalf("session = %#v, want AddingMedia{-100}", sess)
	}

	r.handleMessage(ctx, mediaMsg(moderatorID, "file-1", transport.MediaPhoto))
	r.handleMessage(ctx, mediaMsg(moderatorID, "file-2", transport.MediaVideo))
	if got := fa.lastText(t); !strings.Contains(got, "2") {
		t.Fatalf("staging reply %q does not count 2 uploads", got)
	}

	r.handleMessage(ctx, textMsg(moderatorID, btnFinishUpload))
	if got := st.QueueLen(-100); got != 2 {
		t.Fatalf("QueueLen = %d after finish, want 2", got)
	}
	if _, ok := st.Session(moderatorID); ok {
		t.Fatal("session survived finish")
	}
}

func TestUploadWithoutSession(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.AddUser(ctx, moderatorID, store.RoleModerator); err != nil {
		t.Fatalf("AddUser error: %v", err)
	}

	r.handleMessage(ctx, mediaMsg(moderatorID, "file-1", transport.MediaPhoto))
	if got := fa.lastText(t); !strings.Contains(got, "Pick a channel first") {
		t.Fatalf("reply %q, want channel-first hint", got)
	}

	r.handleMessage(ctx, mediaMsg(strangerID, "file-1", transport.MediaPhoto))
	if got := fa.lastText(t); !strings.Contains(got, msgNoPermission) {
		t.Fatalf("reply %q, want permission denial", got)
	}

	r.handleMessage(ctx, textMsg(moderatorID, btnFinishUpload))
	if got := fa.lastText(t); !strings.Contains(got, "No active upload session") {
		t.Fatalf("reply %q, want no-session notice", got)
	}
}

func TestAddModeratorPromptFlow(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	r.handleMessage(ctx, textMsg(ownerID, btnAddModerator))
	if got := fa.lastText(t); !strings.Contains(got, "user id") {
		t.Fatalf("reply %q, want user id prompt", got)
	}

	// Garbage input is rejected and the prompt is spent.
	r.handleMessage(ctx, textMsg(ownerID, "not a number"))
	if got := fa.lastText(t); !strings.Contains(got, "Invalid user id") {
		t.Fatalf("reply %q, want invalid id notice", got)
	}

	r.handleMessage(ctx, textMsg(ownerID, btnAddModerator))
	r.handleMessage(ctx, textMsg(ownerID, "555"))
	if got := st.Role(555); got != store.RoleModerator {
		t.Fatalf("role of 555 = %s, want moderator", got)
	}
}

func TestAddChannelPromptFlow(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	r.handleMessage(ctx, textMsg(ownerID, btnAddChannel))
	r.handleMessage(ctx, textMsg(ownerID, "-1001234"))
	r.handleMessage(ctx, textMsg(ownerID, "daily memes"))
	r.handleMessage(ctx, textMsg(ownerID, "fresh memes inside"))
	r.handleMessage(ctx, textMsg(ownerID, "10:00, 20:30"))

	ch, ok := st.Channel(-1001234)
	if !ok {
		t.Fatal("channel not created")
	}
	if ch.Name != "daily memes" || ch.PostText != "fresh memes inside" {
		t.Fatalf("channel = %+v", ch)
	}
	if len(ch.PostTimes) != 2 || ch.PostTimes[1] != "20:30" {
		t.Fatalf("PostTimes = %v", ch.PostTimes)
	}
	if got := fa.lastText(t); !strings.Contains(got, "added") {
		t.Fatalf("reply %q, want success notice", got)
	}
}

func TestAddChannelRejectsBadTimes(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	r.handleMessage(ctx, textMsg(ownerID, btnAddChannel))
	r.handleMessage(ctx, textMsg(ownerID, "-55"))
	r.handleMessage(ctx, textMsg(ownerID, "name"))
	r.handleMessage(ctx, textMsg(ownerID, "text"))
	r.handleMessage(ctx, textMsg(ownerID, "25:99"))

	if _, ok := st.Channel(-55); ok {
		t.Fatal("channel created despite invalid times")
	}
	if got := fa.lastText(t); !strings.Contains(got, "invalid time") {
		t.Fatalf("reply %q, want invalid time notice", got)
	}
}

func TestGrantWorkflow(t *testing.T) {
	t.Parallel()
	r, st, _, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.CreateChannel(ctx, -7, "target", "", []string{"10:00"}); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}
	if err := st.AddUser(ctx, moderatorID, store.RoleModerator); err != nil {
		t.Fatalf("AddUser error: %v", err)
	}

	r.handleMessage(ctx, textMsg(ownerID, btnModChannels))
	r.handleMessage(ctx, textMsg(ownerID, fmt.Sprintf("%d", moderatorID)))
	r.handleMessage(ctx, textMsg(ownerID, btnGrantChannel))
	r.handleMessage(ctx, textMsg(ownerID, channelPrefix+"target"))

	if !st.HasChannelAccess(moderatorID, -7) {
		t.Fatal("grant workflow did not grant access")
	}
	if _, ok := st.Session(ownerID); ok {
		t.Fatal("session survived the grant")
	}
}

func TestBackAbortsUpload(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.CreateChannel(ctx, -9, "ch", "", []string{"10:00"}); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}
	fa.downloads["f"] = []byte("x")

	r.handleMessage(ctx, textMsg(ownerID, btnAddMedia))
	r.handleMessage(ctx, textMsg(ownerID, channelPrefix+"ch"))
	r.handleMessage(ctx, mediaMsg(ownerID, "f", transport.MediaPhoto))

	r.handleMessage(ctx, textMsg(ownerID, btnBack))
	if _, ok := st.Session(ownerID); ok {
		t.Fatal("back did not end the upload session")
	}
	if got := st.QueueLen(-9); got != 0 {
		t.Fatalf("QueueLen = %d after abort, want 0", got)
	}
	if got := fa.lastText(t); !strings.Contains(got, "Main menu") {
		t.Fatalf("reply %q, want main menu", got)
	}
}

func TestStatusListsAccessibleChannels(t *testing.T) {
	t.Parallel()
	r, st, fa, _ := newTestRouter(t)
	ctx := context.Background()

	if err := st.CreateChannel(ctx, -1, "visible", "", []string{"10:00"}); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}
	if err := st.CreateChannel(ctx, -2, "hidden", "", []string{"12:00"}); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}
	if err := st.AddUser(ctx, moderatorID, store.RoleModerator); err != nil {
		t.Fatalf("AddUser error: %v", err)
	}
	if err := st.GrantChannelAccess(ctx, moderatorID, -1); err != nil {
		t.Fatalf("GrantChannelAccess error: %v", err)
	}

	r.handleMessage(ctx, textMsg(moderatorID, btnStatus))
	got := fa.lastText(t)
	if !strings.Contains(got, "visible") {
		t.Fatalf("status %q misses the granted channel", got)
	}
	if strings.Contains(got, "hidden") {
		t.Fatalf("status %q leaks an ungranted channel", got)
	}
	if !strings.Contains(got, "10:00") {
		t.Fatalf("status %q misses the slot label", got)
	}
}
