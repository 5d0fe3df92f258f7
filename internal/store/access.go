package store

import "sort"

// Access-control queries. All are pure reads over the current state; an
// unknown user is treated as role "user" with no grants, matching how the
// bot greets strangers.

// Role returns the user's role, defaulting to RoleUser for unknown ids.
func (s *Store) Role(userID int64) Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.st.Users[userID]; ok {
		return u.Role
	}
	return RoleUser
}

// HasPermission reports whether the user's role covers the required tier.
func (s *Store) HasPermission(userID int64, required Role) bool {
	return s.Role(userID).Covers(required)
}

// HasChannelAccess reports whether the user may act on the channel:
// owner/admin always, moderators only via an explicit grant.
func (s *Store) HasChannelAccess(userID, channelID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.Users[userID]
	if !ok {
		return false
	}
	switch u.Role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleModerator:
		return u.hasGrant(channelID)
	}
	return false
}

// AccessibleChannels returns the channel ids the user may act on, ascending.
// Owner/admin see every channel; moderators their grant set; others nothing.
// Stale grants to deleted channels are filtered out.
func (s *Store) AccessibleChannels(userID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.Users[userID]
	if !ok {
		return nil
	}
	var ids []int64
	switch u.Role {
	case RoleOwner, RoleAdmin:
		for id := range s.st.Channels {
			ids = append(ids, id)
		}
	case RoleModerator:
		for _, id := range u.Channels {
			if _, ok := s.st.Channels[id]; ok {
				ids = append(ids, id)
			}
		}
	default:
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UsersWithPermission returns the ids of every user whose role covers the
// required tier (e.g. RoleAdmin for operational alerts).
func (s *Store) UsersWithPermission(required Role) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, u := range s.st.Users {
		if u.Role.Covers(required) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UsersWithChannelAccess returns the ids of every user who can act on the
// channel (owner, admins, and moderators holding a grant).
func (s *Store) UsersWithChannelAccess(channelID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, u := range s.st.Users {
		switch u.Role {
		case RoleOwner, RoleAdmin:
			ids = append(ids, id)
		case RoleModerator:
			if u.hasGrant(channelID) {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ---- read-only views ----

// Channels returns a display-stable summary of every channel.
func (s *Store) Channels() []ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelInfo, 0, len(s.st.Channels))
	for _, c := range s.st.Channels {
		out = append(out, ChannelInfo{
			ID:        c.ID,
			Name:      c.Name,
			PostText:  c.PostText,
			PostTimes: append([]string(nil), c.PostTimes...),
			QueueLen:  len(c.Queue),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channel returns one channel's summary.
func (s *Store) Channel(id int64) (ChannelInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.Channels[id]
	if !ok {
		return ChannelInfo{}, false
	}
	return ChannelInfo{
		ID:        c.ID,
		Name:      c.Name,
		PostText:  c.PostText,
		PostTimes: append([]string(nil), c.PostTimes...),
		QueueLen:  len(c.Queue),
	}, true
}

// QueueLen returns the channel's current queue length (0 if unknown).
func (s *Store) QueueLen(channelID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.Channels[channelID]; ok {
		return len(c.Queue)
	}
	return 0
}

// UsedLocation reports whether the channel has ever enqueued the location.
func (s *Store) UsedLocation(channelID int64, location string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.Channels[channelID]; ok {
		return c.UsedLocations[location]
	}
	return false
}

// Users returns every known user, ascending by id.
func (s *Store) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.st.Users))
	for _, u := range s.st.Users {
		cp := *u
		cp.Channels = append([]int64(nil), u.Channels...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// User returns one user by id.
func (s *Store) User(id int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.Users[id]
	if !ok {
		return User{}, false
	}
	cp := *u
	cp.Channels = append([]int64(nil), u.Channels...)
	return cp, true
}

// Session returns the user's active workflow session, if any.
func (s *Store) Session(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.st.Sessions[userID]
	return sess, ok
}
