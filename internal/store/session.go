package store

import (
	"encoding/json"
	"fmt"
)

// Session is a user's in-flight multi-step workflow. Exactly one variant
// exists per workflow, carrying only the data that workflow needs. A user
// has at most one session at a time; sessions never expire on their own and
// live until advanced, committed, aborted or ended.
type Session interface {
	sessionKind() string
}

// AddingMedia stages uploads for one channel until the user commits.
type AddingMedia struct {
	Channel   int64       `json:"channel"`
	TempItems []MediaItem `json:"temp_items,omitempty"`
}

// EditingChannel tracks which channel an owner is editing.
type EditingChannel struct {
	Channel int64 `json:"channel"`
}

// ManagingModeratorChannels tracks the moderator whose grants are being edited.
type ManagingModeratorChannels struct {
	Target int64 `json:"target"`
}

// GrantingChannel awaits a channel pick to grant to Target.
type GrantingChannel struct {
	Target int64 `json:"target"`
}

// RevokingChannel awaits a channel pick to revoke from Target.
type RevokingChannel struct {
	Target int64 `json:"target"`
}

const (
	kindAddingMedia               = "adding_media"
	kindEditingChannel            = "editing_channel"
	kindManagingModeratorChannels = "managing_moderator_channels"
	kindGrantingChannel           = "granting_channel"
	kindRevokingChannel           = "revoking_channel"
)

func (AddingMedia) sessionKind() string               { return kindAddingMedia }
func (EditingChannel) sessionKind() string            { return kindEditingChannel }
func (ManagingModeratorChannels) sessionKind() string { return kindManagingModeratorChannels }
func (GrantingChannel) sessionKind() string           { return kindGrantingChannel }
func (RevokingChannel) sessionKind() string           { return kindRevokingChannel }

// sessionEnvelope is the persisted form: a state tag plus the variant's data.
type sessionEnvelope struct {
	State string          `json:"state"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshalSession(s Session) (json.RawMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("nil session")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionEnvelope{State: s.sessionKind(), Data: data})
}

func unmarshalSession(raw json.RawMessage) (Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var s Session
	switch env.State {
	case kindAddingMedia:
		v := AddingMedia{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case kindEditingChannel:
		v := EditingChannel{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case kindManagingModeratorChannels:
		v := ManagingModeratorChannels{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case kindGrantingChannel:
		v := GrantingChannel{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case kindRevokingChannel:
		v := RevokingChannel{}
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	default:
		return nil, fmt.Errorf("unknown session state %q", env.State)
	}
	return s, nil
}
