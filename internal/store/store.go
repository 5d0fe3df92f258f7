package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"postbot/internal/media"
	"postbot/internal/storage"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Store owns all persistent bot state: users, channels (with their media
// queues) and workflow sessions. Every mutation runs under one mutex against
// a cloned state, is durably persisted, and only then swapped in. A failed
// write therefore leaves memory and disk agreeing on the pre-mutation value,
// and concurrent callers (the update router and the post scheduler) never
// observe a half-applied change.
type Store struct {
	log     logx.Logger
	backend storage.Store
	lib     *media.Library
	ownerID int64

	mu sync.Mutex
	st *state
}

type state struct {
	Users    map[int64]*User
	Channels map[int64]*Channel
	Sessions map[int64]Session
}

// snapshotDoc is the persisted wire form.
type snapshotDoc struct {
	Users    map[int64]*User           `json:"users"`
	Channels map[int64]*Channel        `json:"channels"`
	Sessions map[int64]json.RawMessage `json:"sessions,omitempty"`
}

func newState() *state {
	return &state{
		Users:    map[int64]*User{},
		Channels: map[int64]*Channel{},
		Sessions: map[int64]Session{},
	}
}

func (st *state) clone() *state {
	next := newState()
	for id, u := range st.Users {
		cp := *u
		cp.Channels = append([]int64(nil), u.Channels...)
		next.Users[id] = &cp
	}
	for id, c := range st.Channels {
		cp := *c
		cp.PostTimes = append([]string(nil), c.PostTimes...)
		cp.Queue = append([]MediaItem(nil), c.Queue...)
		cp.UsedLocations = make(map[string]bool, len(c.UsedLocations))
		for loc := range c.UsedLocations {
			cp.UsedLocations[loc] = true
		}
		next.Channels[id] = &cp
	}
	for id, s := range st.Sessions {
		if am, ok := s.(AddingMedia); ok {
			am.TempItems = append([]MediaItem(nil), am.TempItems...)
			next.Sessions[id] = am
			continue
		}
		next.Sessions[id] = s
	}
	return next
}

func (st *state) encode() ([]byte, error) {
	doc := snapshotDoc{
		Users:    st.Users,
		Channels: st.Channels,
		Sessions: map[int64]json.RawMessage{},
	}
	for id, s := range st.Sessions {
		raw, err := marshalSession(s)
		if err != nil {
			return nil, err
		}
		doc.Sessions[id] = raw
	}
	return json.Marshal(doc)
}

func decodeState(b []byte, log logx.Logger) (*state, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	st := newState()
	for id, u := range doc.Users {
		if u == nil {
			continue
		}
		u.ID = id
		st.Users[id] = u
	}
	for id, c := range doc.Channels {
		if c == nil {
			continue
		}
		c.ID = id
		if c.UsedLocations == nil {
			c.UsedLocations = map[string]bool{}
		}
		st.Channels[id] = c
	}
	for id, raw := range doc.Sessions {
		s, err := unmarshalSession(raw)
		if err != nil {
			// A session from an older schema is dropped, not fatal:
			// the user simply restarts the workflow.
			log.Warn("dropping unreadable session", logx.Int64("user", id), logx.Err(err))
			continue
		}
		st.Sessions[id] = s
	}
	return st, nil
}

// Open loads the persisted snapshot and bootstraps the owner user if absent.
func Open(ctx context.Context, backend storage.Store, lib *media.Library, ownerID int64, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{log: log, backend: backend, lib: lib, ownerID: ownerID, st: newState()}

	b, ok, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		st, err := decodeState(b, log)
		if err != nil {
			return nil, err
		}
		s.st = st
	}

	if _, exists := s.st.Users[ownerID]; !exists {
		err := s.mutate(ctx, func(st *state) error {
			st.Users[ownerID] = &User{ID: ownerID, Role: RoleOwner}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.Info("owner bootstrapped", logx.Int64("user", ownerID))
	}
	return s, nil
}

// OwnerID returns the immutable bootstrap owner id.
func (s *Store) OwnerID() int64 { return s.ownerID }

// mutate clones the current state, applies fn to the clone, persists the
// result, and swaps it in. Persist failure discards the clone.
func (s *Store) mutate(ctx context.Context, fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(ctx, fn)
}

func (s *Store) mutateLocked(ctx context.Context, fn func(st *state) error) error {
	next := s.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	b, err := next.encode()
	if err != nil {
		return &persistError{err: err}
	}
	if err := s.backend.Save(ctx, b); err != nil {
		return &persistError{err: err}
	}
	s.st = next
	return nil
}

// ---- users ----

// AddUser registers (or re-roles) a user. The owner id is untouchable and
// the owner role is bootstrap-only. New admins get every current channel in
// their grant set (access is implicit anyway; the set keeps listings whole).
func (s *Store) AddUser(ctx context.Context, id int64, role Role) error {
	if id == s.ownerID {
		return ErrOwnerImmutable
	}
	if !role.Valid() {
		return fmt.Errorf("role %q is not grantable", role)
	}
	return s.mutate(ctx, func(st *state) error {
		u := &User{ID: id, Role: role}
		if role == RoleAdmin {
			for cid := range st.Channels {
				u.Channels = append(u.Channels, cid)
			}
			sort.Slice(u.Channels, func(i, j int) bool { return u.Channels[i] < u.Channels[j] })
		}
		st.Users[id] = u
		return nil
	})
}

// RemoveUser deletes a user and returns the role they held.
func (s *Store) RemoveUser(ctx context.Context, id int64) (Role, error) {
	if id == s.ownerID {
		return "", ErrOwnerImmutable
	}
	var prior Role
	err := s.mutate(ctx, func(st *state) error {
		u, ok := st.Users[id]
		if !ok {
			return ErrNotFound
		}
		prior = u.Role
		delete(st.Users, id)
		delete(st.Sessions, id)
		return nil
	})
	return prior, err
}

// GrantChannelAccess adds a channel to a moderator's grant set. Idempotent.
func (s *Store) GrantChannelAccess(ctx context.Context, moderatorID, channelID int64) error {
	return s.mutate(ctx, func(st *state) error {
		u, ok := st.Users[moderatorID]
		if !ok || u.Role != RoleModerator {
			return ErrNotModerator
		}
		if _, ok := st.Channels[channelID]; !ok {
			return ErrNotFound
		}
		if !u.hasGrant(channelID) {
			u.Channels = append(u.Channels, channelID)
		}
		return nil
	})
}

// RevokeChannelAccess removes a channel from a moderator's grant set.
// Revoking an absent grant is a no-op.
func (s *Store) RevokeChannelAccess(ctx context.Context, moderatorID, channelID int64) error {
	return s.mutate(ctx, func(st *state) error {
		u, ok := st.Users[moderatorID]
		if !ok || u.Role != RoleModerator {
			return ErrNotModerator
		}
		for i, id := range u.Channels {
			if id == channelID {
				u.Channels = append(u.Channels[:i], u.Channels[i+1:]...)
				break
			}
		}
		return nil
	})
}

// ---- channels ----

// CreateChannel registers a channel, allocates its blob directory, and adds
// it to every current owner/admin grant set.
func (s *Store) CreateChannel(ctx context.Context, id int64, name, postText string, postTimes []string) error {
	dir, err := s.lib.ChannelDir(id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.Channels[id]; ok {
			return ErrChannelExists
		}
		st.Channels[id] = &Channel{
			ID:            id,
			Name:          name,
			Dir:           dir,
			PostText:      postText,
			PostTimes:     append([]string(nil), postTimes...),
			UsedLocations: map[string]bool{},
		}
		for _, u := range st.Users {
			if (u.Role == RoleOwner || u.Role == RoleAdmin) && !u.hasGrant(id) {
				u.Channels = append(u.Channels, id)
			}
		}
		return nil
	})
}

// UpdateChannel applies a partial edit. The blob directory is immutable.
func (s *Store) UpdateChannel(ctx context.Context, id int64, upd ChannelUpdate) error {
	return s.mutate(ctx, func(st *state) error {
		c, ok := st.Channels[id]
		if !ok {
			return ErrNotFound
		}
		if upd.Name != nil {
			c.Name = *upd.Name
		}
		if upd.PostText != nil {
			c.PostText = *upd.PostText
		}
		if upd.PostTimes != nil {
			c.PostTimes = append([]string(nil), upd.PostTimes...)
		}
		return nil
	})
}

// DeleteChannel removes a channel, strips its id from every grant set, and
// releases its blob directory.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.mutateLocked(ctx, func(st *state) error {
		if _, ok := st.Channels[id]; !ok {
			return ErrNotFound
		}
		delete(st.Channels, id)
		for _, u := range st.Users {
			for i, cid := range u.Channels {
				if cid == id {
					u.Channels = append(u.Channels[:i], u.Channels[i+1:]...)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if rerr := s.lib.ReleaseChannel(id); rerr != nil {
		s.log.Warn("releasing channel media dir failed", logx.Int64("channel", id), logx.Err(rerr))
	}
	return nil
}

// ---- media queue ----

// EnqueueMedia appends an item to the channel's queue and records its
// location permanently. A location the channel has ever seen is rejected.
func (s *Store) EnqueueMedia(ctx context.Context, channelID int64, location string, kind transport.MediaKind) error {
	return s.mutate(ctx, func(st *state) error {
		return enqueueInto(st, channelID, location, kind)
	})
}

func enqueueInto(st *state, channelID int64, location string, kind transport.MediaKind) error {
	c, ok := st.Channels[channelID]
	if !ok {
		return ErrNotFound
	}
	if c.UsedLocations[location] {
		return ErrDuplicateLocation
	}
	c.Queue = append(c.Queue, MediaItem{Location: location, Kind: kind})
	c.UsedLocations[location] = true
	return nil
}

// DequeueMedia removes and returns the head of the channel's queue.
func (s *Store) DequeueMedia(ctx context.Context, channelID int64) (MediaItem, error) {
	var item MediaItem
	err := s.mutate(ctx, func(st *state) error {
		c, ok := st.Channels[channelID]
		if !ok {
			return ErrNotFound
		}
		if len(c.Queue) == 0 {
			return ErrQueueEmpty
		}
		item = c.Queue[0]
		c.Queue = append([]MediaItem(nil), c.Queue[1:]...)
		return nil
	})
	return item, err
}

// ---- sessions ----

// BeginSession starts (or replaces) the user's workflow session.
func (s *Store) BeginSession(ctx context.Context, userID int64, sess Session) error {
	return s.mutate(ctx, func(st *state) error {
		st.Sessions[userID] = sess
		return nil
	})
}

// AdvanceSession swaps the user's session to the next workflow step.
func (s *Store) AdvanceSession(ctx context.Context, userID int64, sess Session) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.Sessions[userID]; !ok {
			return ErrNoSession
		}
		st.Sessions[userID] = sess
		return nil
	})
}

// StageTempItem appends a staged upload to an adding_media session.
func (s *Store) StageTempItem(ctx context.Context, userID int64, item MediaItem) error {
	return s.mutate(ctx, func(st *state) error {
		sess, ok := st.Sessions[userID]
		if !ok {
			return ErrNoSession
		}
		am, ok := sess.(AddingMedia)
		if !ok {
			return ErrWrongSession
		}
		am.TempItems = append(am.TempItems, item)
		st.Sessions[userID] = am
		return nil
	})
}

// CommitSession moves an adding_media session's staged items into the
// channel queue and ends the session. Items whose location was already used
// (or whose channel vanished mid-session) have their blobs released instead
// of retained. Returns how many items were actually enqueued.
func (s *Store) CommitSession(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	var rejected []MediaItem
	err := s.mutateLocked(ctx, func(st *state) error {
		sess, ok := st.Sessions[userID]
		if !ok {
			return ErrNoSession
		}
		am, ok := sess.(AddingMedia)
		if !ok {
			return ErrWrongSession
		}
		for _, item := range am.TempItems {
			if err := enqueueInto(st, am.Channel, item.Location, item.Kind); err != nil {
				rejected = append(rejected, item)
				continue
			}
			added++
		}
		delete(st.Sessions, userID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, item := range rejected {
		if rerr := s.lib.Release(item.Location); rerr != nil {
			s.log.Warn("releasing rejected media failed", logx.String("location", item.Location), logx.Err(rerr))
		}
	}
	return added, nil
}

// AbortSession ends the user's session. Staged uploads are discarded and
// their blobs released.
func (s *Store) AbortSession(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var staged []MediaItem
	err := s.mutateLocked(ctx, func(st *state) error {
		sess, ok := st.Sessions[userID]
		if !ok {
			return ErrNoSession
		}
		if am, ok := sess.(AddingMedia); ok {
			staged = am.TempItems
		}
		delete(st.Sessions, userID)
		return nil
	})
	if err != nil {
		return err
	}
	for _, item := range staged {
		if rerr := s.lib.Release(item.Location); rerr != nil {
			s.log.Warn("releasing staged media failed", logx.String("location", item.Location), logx.Err(rerr))
		}
	}
	return nil
}

// EndSession drops the session if one exists, releasing staged blobs.
// Unlike AbortSession it is a no-op without a session.
func (s *Store) EndSession(ctx context.Context, userID int64) error {
	err := s.AbortSession(ctx, userID)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}
