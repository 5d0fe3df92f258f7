package store

import (
	"postbot/internal/transport"
)

// Role is the access tier of a user. The tiers form a total order:
// owner > admin > moderator > user.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is a grantable role (owner is bootstrap-only).
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Covers reports whether r satisfies the required tier.
func (r Role) Covers(required Role) bool { return r.rank() >= required.rank() }

// User is a known identity with a role and, for moderators, an explicit
// channel grant set. Owner/admin access is implicit and ignores Channels.
type User struct {
	ID       int64   `json:"id"`
	Role     Role    `json:"role"`
	Channels []int64 `json:"channels,omitempty"`
}

func (u *User) hasGrant(channelID int64) bool {
	for _, id := range u.Channels {
		if id == channelID {
			return true
		}
	}
	return false
}

// MediaItem is one queued (or staged) media blob.
type MediaItem struct {
	Location string              `json:"location"`
	Kind     transport.MediaKind `json:"kind"`
}

// Channel is a distribution target with its posting schedule and queue.
//
// UsedLocations retains every location ever enqueued for the channel's
// lifetime, so a consumed item can never be re-enqueued from the same
// source. It is a superset of the locations currently in Queue.
type Channel struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Dir       string   `json:"dir"` // blob directory; immutable once set
	PostText  string   `json:"post_text"`
	PostTimes []string `json:"post_times"`

	Queue         []MediaItem     `json:"queue"`
	UsedLocations map[string]bool `json:"used_locations"`
}

// ChannelUpdate is a partial channel edit. Nil fields are left unchanged.
// The blob directory is immutable and has no update field.
type ChannelUpdate struct {
	Name      *string
	PostText  *string
	PostTimes []string
}

// ChannelInfo is the read-only view handed to the scheduler and the UI.
type ChannelInfo struct {
	ID        int64
	Name      string
	PostText  string
	PostTimes []string
	QueueLen  int
}
