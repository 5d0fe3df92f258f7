package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/scheduler"
	"postbot/internal/store"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

func (r *Router) dispatch(ctx context.Context, msg *transport.Message) {
	switch {
	case msg.Text == "/start":
		r.handleStart(ctx, msg)
	case msg.Text == btnHelp:
		r.handleHelp(ctx, msg)
	case msg.Text == btnStatus:
		r.handleStatus(ctx, msg)

	case msg.Text == btnAddMedia:
		r.handleAddMediaStart(ctx, msg)
	case msg.Text == btnFinishUpload:
		r.handleFinishUpload(ctx, msg)

	case msg.Text == btnManageUsers:
		r.requirePermission(ctx, msg, store.RoleAdmin, func() {
			r.reply(ctx, msg, "User management:", adminMenu())
		})
	case msg.Text == btnAddModerator:
		r.handleAddUserStart(ctx, msg, store.RoleModerator)
	case msg.Text == btnAddAdmin:
		r.handleAddUserStart(ctx, msg, store.RoleAdmin)
	case msg.Text == btnModChannels:
		r.handleModChannelsStart(ctx, msg)
	case msg.Text == btnGrantChannel:
		r.handleGrantStart(ctx, msg)
	case msg.Text == btnRevokeChannel:
		r.handleRevokeStart(ctx, msg)
	case msg.Text == btnShowGrants:
		r.handleShowGrants(ctx, msg)
	case msg.Text == btnRemoveUser:
		r.handleRemoveUserStart(ctx, msg)
	case msg.Text == btnListUsers:
		r.handleListUsers(ctx, msg)

	case msg.Text == btnManageChannels:
		r.requirePermission(ctx, msg, store.RoleOwner, func() {
			r.reply(ctx, msg, "Channel management:", ownerMenu())
		})
	case msg.Text == btnAddChannel:
		r.handleAddChannelStart(ctx, msg)
	case msg.Text == btnListChannels:
		r.handleListChannels(ctx, msg)
	case msg.Text == btnEditChannel:
		r.handleEditChannelStart(ctx, msg)
	case msg.Text == btnEditName, msg.Text == btnEditText, msg.Text == btnEditTimes:
		r.handleEditField(ctx, msg)
	case msg.Text == btnDeleteChannel:
		r.handleDeleteChannelStart(ctx, msg)

	case strings.HasPrefix(msg.Text, channelPrefix):
		r.handleChannelPick(ctx, msg)
	case strings.HasPrefix(msg.Text, deletePrefix):
		r.handleDeleteChannelPick(ctx, msg)
	}
}

func (r *Router) requirePermission(ctx context.Context, msg *transport.Message, required store.Role, fn func()) {
	if !r.st.HasPermission(msg.FromID, required) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	fn()
}

// ---- start / help / status ----

func (r *Router) handleStart(ctx context.Context, msg *transport.Message) {
	role := r.st.Role(msg.FromID)
	r.reply(ctx, msg, fmt.Sprintf("🤖 Bot is up!\nYour role: %s", role), r.mainMenu(msg.FromID))
}

func (r *Router) handleHelp(ctx context.Context, msg *transport.Message) {
	role := r.st.Role(msg.FromID)
	var b strings.Builder
	fmt.Fprintf(&b, "📖 Bot help\nYour role: %s\n\n", role)
	b.WriteString("Available actions:\n")
	b.WriteString("📤 Add media: upload photos and videos into your channels\n")
	b.WriteString("📊 Status: queue sizes and upcoming post times\n")
	if r.st.HasPermission(msg.FromID, store.RoleAdmin) {
		b.WriteString("👥 Manage users: add or remove moderators and admins, assign channels\n")
	}
	if r.st.HasPermission(msg.FromID, store.RoleOwner) {
		b.WriteString("📺 Manage channels: add, edit and delete channels\n")
	}
	b.WriteString("\nAccess model:\n")
	b.WriteString("• Owner and admins: every channel\n")
	b.WriteString("• Moderators: only their assigned channels\n")
	r.reply(ctx, msg, b.String(), nil)
}

func (r *Router) handleStatus(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleModerator) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}

	ids := r.st.AccessibleChannels(msg.FromID)
	if len(ids) == 0 {
		r.reply(ctx, msg, "❌ No channels available", nil)
		return
	}

	cfg := r.snapshotCfg()
	now := time.Now().UTC()

	var b strings.Builder
	for _, id := range ids {
		ch, ok := r.st.Channel(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "📺 Channel: %s\n", ch.Name)
		fmt.Fprintf(&b, "📊 Media left: %d\n", ch.QueueLen)
		slots := scheduler.SlotTimes(ch.PostTimes, now, cfg.UTCOffset, cfg.Jitter, r.rng)
		if len(slots) == 0 {
			b.WriteString("   ⚠️ No schedule\n")
		}
		for i, slot := range slots {
			fmt.Fprintf(&b, "   %d. In %s (~%s local)\n", i+1, formatCountdown(slot.At.Sub(now)), slot.Label)
		}
		b.WriteString("\n")
	}
	r.reply(ctx, msg, strings.TrimRight(b.String(), "\n"), nil)
}

// ---- media upload workflow ----

func (r *Router) handleAddMediaStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleModerator) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	if len(r.st.AccessibleChannels(msg.FromID)) == 0 {
		r.reply(ctx, msg, "❌ You have no channel access. Ask an admin to assign you a channel.", nil)
		return
	}
	r.reply(ctx, msg, "Pick a channel to upload media into:", r.channelMenu(msg.FromID))
}

// handleChannelPick resolves a "📺 Name" press. The meaning depends on the
// user's current session: no session starts an upload, edit and grant
// workflows consume the pick as their channel argument.
func (r *Router) handleChannelPick(ctx context.Context, msg *transport.Message) {
	sess, hasSess := r.st.Session(msg.FromID)

	if !hasSess {
		accessible := make([]store.ChannelInfo, 0)
		for _, id := range r.st.AccessibleChannels(msg.FromID) {
			if ch, ok := r.st.Channel(id); ok {
				accessible = append(accessible, ch)
			}
		}
		ch, ok := channelByName(accessible, msg.Text, channelPrefix)
		if !ok {
			r.reply(ctx, msg, "❌ Channel not found or no access", nil)
			return
		}
		if err := r.st.BeginSession(ctx, msg.FromID, store.AddingMedia{Channel: ch.ID}); err != nil {
			r.replyStoreErr(ctx, msg, err)
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("✅ Channel picked: %s\nNow send photos or videos. Press %q when done.", ch.Name, btnFinishUpload), uploadMenu())
		return
	}

	switch s := sess.(type) {
	case store.EditingChannel:
		ch, ok := channelByName(r.st.Channels(), msg.Text, channelPrefix)
		if !ok {
			r.reply(ctx, msg, "❌ Channel not found", nil)
			return
		}
		if err := r.st.AdvanceSession(ctx, msg.FromID, store.EditingChannel{Channel: ch.ID}); err != nil {
			r.replyStoreErr(ctx, msg, err)
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("Channel picked: %s\nChoose what to edit:", ch.Name), editMenu())

	case store.GrantingChannel:
		ch, ok := channelByName(r.st.Channels(), msg.Text, channelPrefix)
		if !ok {
			r.reply(ctx, msg, "❌ Channel not found", nil)
			return
		}
		err := r.st.GrantChannelAccess(ctx, s.Target, ch.ID)
		_ = r.st.EndSession(ctx, msg.FromID)
		if err != nil {
			r.reply(ctx, msg, "❌ Could not grant the channel: "+userFacing(err), r.mainMenu(msg.FromID))
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("✅ Channel %q granted to moderator %d", ch.Name, s.Target), r.mainMenu(msg.FromID))

	case store.RevokingChannel:
		ch, ok := channelByName(r.st.Channels(), msg.Text, channelPrefix)
		if !ok {
			r.reply(ctx, msg, "❌ Channel not found", nil)
			return
		}
		err := r.st.RevokeChannelAccess(ctx, s.Target, ch.ID)
		_ = r.st.EndSession(ctx, msg.FromID)
		if err != nil {
			r.reply(ctx, msg, "❌ Could not revoke the channel: "+userFacing(err), r.mainMenu(msg.FromID))
			return
		}
		r.reply(ctx, msg, fmt.Sprintf("✅ Channel %q revoked from moderator %d", ch.Name, s.Target), r.mainMenu(msg.FromID))
	}
}

func (r *Router) handleMediaUpload(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	am, isAdding := sess.(store.AddingMedia)
	if !ok || !isAdding {
		if r.st.HasPermission(msg.FromID, store.RoleModerator) {
			r.reply(ctx, msg, fmt.Sprintf("❌ Pick a channel first via %q", btnAddMedia), nil)
		} else {
			r.reply(ctx, msg, msgNoPermission, nil)
		}
		return
	}
	if !r.st.HasChannelAccess(msg.FromID, am.Channel) {
		r.reply(ctx, msg, "❌ You no longer have access to this channel", nil)
		return
	}

	data, err := r.adapter.Download(ctx, *msg.Media)
	if err != nil {
		r.log.Warn("media download failed", logx.Err(err), logx.Int64("user", msg.FromID))
		r.reply(ctx, msg, "❌ Could not download the file, try again", nil)
		return
	}
	path, err := r.lib.Save(am.Channel, msg.Media.Kind, msg.Media.ID, data)
	if err != nil {
		r.log.Warn("media save failed", logx.Err(err), logx.Int64("channel", am.Channel))
		r.reply(ctx, msg, "❌ Could not store the file, try again", nil)
		return
	}
	if err := r.st.StageTempItem(ctx, msg.FromID, store.MediaItem{Location: path, Kind: msg.Media.Kind}); err != nil {
		_ = r.lib.Release(path)
		r.replyStoreErr(ctx, msg, err)
		return
	}

	staged := 0
	if s, ok := r.st.Session(msg.FromID); ok {
		if am, ok := s.(store.AddingMedia); ok {
			staged = len(am.TempItems)
		}
	}
	r.reply(ctx, msg, fmt.Sprintf("✅ %s staged. Uploads this session: %d", mediaLabel(msg.Media.Kind), staged), nil)
}

func (r *Router) handleFinishUpload(ctx context.Context, msg *transport.Message) {
	added, err := r.st.CommitSession(ctx, msg.FromID)
	if err != nil {
		if errors.Is(err, store.ErrNoSession) || errors.Is(err, store.ErrWrongSession) {
			r.reply(ctx, msg, "❌ No active upload session", nil)
			return
		}
		r.replyStoreErr(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("✅ Upload finished! %d media files queued", added), r.mainMenu(msg.FromID))
}

// ---- user management ----

func (r *Router) handleAddUserStart(ctx context.Context, msg *transport.Message, role store.Role) {
	required := store.RoleAdmin
	if role == store.RoleAdmin {
		required = store.RoleOwner
	}
	if !r.st.HasPermission(msg.FromID, required) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("Send the user id to add as %s:", role), nil)
	r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
		id, err := strconv.ParseInt(strings.TrimSpace(m.Text), 10, 64)
		if err != nil {
			r.reply(ctx, m, "❌ Invalid user id", nil)
			return nil
		}
		if err := r.st.AddUser(ctx, id, role); err != nil {
			r.reply(ctx, m, "❌ Could not add the user: "+userFacing(err), nil)
			return err
		}
		if role == store.RoleAdmin {
			r.reply(ctx, m, fmt.Sprintf("✅ User %d added as admin (has access to every channel)", id), nil)
		} else {
			r.reply(ctx, m, fmt.Sprintf("✅ User %d added as moderator. Assign channels via %q.", id, btnModChannels), nil)
		}
		return nil
	}
}

func (r *Router) handleModChannelsStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleAdmin) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	r.reply(ctx, msg, "Send the moderator's user id:", nil)
	r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
		id, err := strconv.ParseInt(strings.TrimSpace(m.Text), 10, 64)
		if err != nil {
			r.reply(ctx, m, "❌ Invalid user id", nil)
			return nil
		}
		u, ok := r.st.User(id)
		if !ok || u.Role != store.RoleModerator {
			r.reply(ctx, m, "❌ That user is not a moderator", nil)
			return nil
		}
		if err := r.st.BeginSession(ctx, m.FromID, store.ManagingModeratorChannels{Target: id}); err != nil {
			r.replyStoreErr(ctx, m, err)
			return err
		}
		r.reply(ctx, m, fmt.Sprintf("Managing channels of moderator %d:", id), grantsMenu())
		return nil
	}
}

func (r *Router) handleGrantStart(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	mm, isManaging := sess.(store.ManagingModeratorChannels)
	if !ok || !isManaging {
		return
	}
	if err := r.st.AdvanceSession(ctx, msg.FromID, store.GrantingChannel{Target: mm.Target}); err != nil {
		r.replyStoreErr(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, "Pick a channel to grant:", r.allChannelsMenu())
}

func (r *Router) handleRevokeStart(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	mm, isManaging := sess.(store.ManagingModeratorChannels)
	if !ok || !isManaging {
		return
	}
	u, ok := r.st.User(mm.Target)
	if !ok || len(u.Channels) == 0 {
		r.reply(ctx, msg, "❌ This moderator has no assigned channels", nil)
		return
	}
	if err := r.st.AdvanceSession(ctx, msg.FromID, store.RevokingChannel{Target: mm.Target}); err != nil {
		r.replyStoreErr(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, "Pick a channel to revoke:", r.channelMenu(mm.Target))
}

func (r *Router) handleShowGrants(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	mm, isManaging := sess.(store.ManagingModeratorChannels)
	if !ok || !isManaging {
		return
	}
	u, ok := r.st.User(mm.Target)
	if !ok || u.Role != store.RoleModerator {
		r.reply(ctx, msg, "❌ That user is not a moderator", nil)
		return
	}
	if len(u.Channels) == 0 {
		r.reply(ctx, msg, fmt.Sprintf("📋 Moderator %d has no assigned channels", mm.Target), nil)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Channels of moderator %d:\n\n", mm.Target)
	for _, id := range u.Channels {
		if ch, ok := r.st.Channel(id); ok {
			fmt.Fprintf(&b, "📺 %s (ID: %d)\n", ch.Name, id)
		}
	}
	r.reply(ctx, msg, b.String(), nil)
}

func (r *Router) handleRemoveUserStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleAdmin) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	r.reply(ctx, msg, "Send the user id to remove (the owner cannot be removed):", nil)
	r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
		id, err := strconv.ParseInt(strings.TrimSpace(m.Text), 10, 64)
		if err != nil {
			r.reply(ctx, m, "❌ Invalid user id", nil)
			return nil
		}
		role, err := r.st.RemoveUser(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrOwnerImmutable) {
				r.reply(ctx, m, "❌ The owner cannot be removed", nil)
				return nil
			}
			if errors.Is(err, store.ErrNotFound) {
				r.reply(ctx, m, fmt.Sprintf("❌ User %d not found", id), nil)
				return nil
			}
			r.replyStoreErr(ctx, m, err)
			return err
		}
		r.reply(ctx, m, fmt.Sprintf("✅ User %d removed (was %s)", id, role), nil)
		return nil
	}
}

func (r *Router) handleListUsers(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleAdmin) {
		return
	}
	var b strings.Builder
	b.WriteString("👥 Users:\n\n")
	for _, u := range r.st.Users() {
		label := roleLabel(u.Role)
		if u.Role == store.RoleModerator {
			label = fmt.Sprintf("%s (%d channels)", label, len(u.Channels))
		}
		fmt.Fprintf(&b, "%d: %s\n", u.ID, label)
	}
	r.reply(ctx, msg, b.String(), nil)
}

// ---- channel management ----

func (r *Router) handleAddChannelStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleOwner) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	r.reply(ctx, msg, "Send the channel id (e.g. -1001234567890):", nil)
	r.pending[msg.FromID] = r.addChannelIDStep
}

func (r *Router) addChannelIDStep(ctx context.Context, m *transport.Message) error {
	id, err := strconv.ParseInt(strings.TrimSpace(m.Text), 10, 64)
	if err != nil {
		r.reply(ctx, m, "❌ Invalid channel id, it must be a number (e.g. -1001234567890)", nil)
		return nil
	}
	r.reply(ctx, m, "Send the channel name:", nil)
	r.pending[m.FromID] = func(ctx context.Context, m *transport.Message) error {
		name := strings.TrimSpace(m.Text)
		if name == "" {
			r.reply(ctx, m, "❌ The name must not be empty", nil)
			return nil
		}
		r.reply(ctx, m, "Send the post caption text:", nil)
		r.pending[m.FromID] = func(ctx context.Context, m *transport.Message) error {
			postText := m.Text
			r.reply(ctx, m, "Send the post times, comma separated (e.g. 10:00, 15:00, 20:00):", nil)
			r.pending[m.FromID] = func(ctx context.Context, m *transport.Message) error {
				times, err := parseSlotList(m.Text)
				if err != nil {
					r.reply(ctx, m, "❌ "+err.Error(), nil)
					return nil
				}
				if err := r.st.CreateChannel(ctx, id, name, postText, times); err != nil {
					r.reply(ctx, m, "❌ Could not add the channel: "+userFacing(err), nil)
					return err
				}
				r.reply(ctx, m, fmt.Sprintf("✅ Channel %q added!\nID: %d\nCaption: %s\nTimes: %s",
					name, id, postText, strings.Join(times, ", ")), r.mainMenu(m.FromID))
				return nil
			}
			return nil
		}
		return nil
	}
	return nil
}

func (r *Router) handleListChannels(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleOwner) {
		return
	}
	channels := r.st.Channels()
	if len(channels) == 0 {
		r.reply(ctx, msg, "❌ No channels yet", nil)
		return
	}
	var b strings.Builder
	b.WriteString("📋 All channels:\n\n")
	for _, ch := range channels {
		fmt.Fprintf(&b, "📺 %s\n   ID: %d\n   Queue: %d media\n   Times: %s\n\n",
			ch.Name, ch.ID, ch.QueueLen, strings.Join(ch.PostTimes, ", "))
	}
	r.reply(ctx, msg, strings.TrimRight(b.String(), "\n"), nil)
}

func (r *Router) handleEditChannelStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleOwner) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	if len(r.st.Channels()) == 0 {
		r.reply(ctx, msg, "❌ No channels yet", nil)
		return
	}
	if err := r.st.BeginSession(ctx, msg.FromID, store.EditingChannel{}); err != nil {
		r.replyStoreErr(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, "Pick a channel to edit:", r.allChannelsMenu())
}

func (r *Router) handleEditField(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	ec, isEditing := sess.(store.EditingChannel)
	if !ok || !isEditing || ec.Channel == 0 {
		return
	}
	channelID := ec.Channel

	switch msg.Text {
	case btnEditName:
		r.reply(ctx, msg, "Send the new channel name:", nil)
		r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
			name := strings.TrimSpace(m.Text)
			if name == "" {
				r.reply(ctx, m, "❌ The name must not be empty", nil)
				return nil
			}
			if err := r.st.UpdateChannel(ctx, channelID, store.ChannelUpdate{Name: &name}); err != nil {
				r.reply(ctx, m, "❌ Could not rename the channel: "+userFacing(err), nil)
				return err
			}
			r.reply(ctx, m, fmt.Sprintf("✅ Channel renamed to: %s", name), editMenu())
			return nil
		}
	case btnEditText:
		r.reply(ctx, msg, "Send the new post caption text:", nil)
		r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
			text := m.Text
			if err := r.st.UpdateChannel(ctx, channelID, store.ChannelUpdate{PostText: &text}); err != nil {
				r.reply(ctx, m, "❌ Could not change the caption: "+userFacing(err), nil)
				return err
			}
			r.reply(ctx, m, "✅ Post caption updated", editMenu())
			return nil
		}
	case btnEditTimes:
		r.reply(ctx, msg, "Send the new post times, comma separated (e.g. 10:00, 15:00, 20:00):", nil)
		r.pending[msg.FromID] = func(ctx context.Context, m *transport.Message) error {
			times, err := parseSlotList(m.Text)
			if err != nil {
				r.reply(ctx, m, "❌ "+err.Error(), nil)
				return nil
			}
			if err := r.st.UpdateChannel(ctx, channelID, store.ChannelUpdate{PostTimes: times}); err != nil {
				r.reply(ctx, m, "❌ Could not change the times: "+userFacing(err), nil)
				return err
			}
			r.reply(ctx, m, fmt.Sprintf("✅ Post times changed to: %s", strings.Join(times, ", ")), editMenu())
			return nil
		}
	}
}

func (r *Router) handleDeleteChannelStart(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleOwner) {
		r.reply(ctx, msg, msgNoPermission, nil)
		return
	}
	channels := r.st.Channels()
	if len(channels) == 0 {
		r.reply(ctx, msg, "❌ No channels yet", nil)
		return
	}
	kb := deleteMenu(channels)
	r.reply(ctx, msg, "Pick a channel to delete (all of its media files will be removed):", kb)
}

func (r *Router) handleDeleteChannelPick(ctx context.Context, msg *transport.Message) {
	if !r.st.HasPermission(msg.FromID, store.RoleOwner) {
		return
	}
	ch, ok := channelByName(r.st.Channels(), msg.Text, deletePrefix)
	if !ok {
		r.reply(ctx, msg, "❌ Channel not found", nil)
		return
	}
	if err := r.st.DeleteChannel(ctx, ch.ID); err != nil {
		r.reply(ctx, msg, "❌ Could not delete the channel: "+userFacing(err), nil)
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("✅ Channel %q deleted", ch.Name), r.mainMenu(msg.FromID))
}

// ---- back ----

func (r *Router) handleBack(ctx context.Context, msg *transport.Message) {
	sess, ok := r.st.Session(msg.FromID)
	if ok {
		switch s := sess.(type) {
		case store.ManagingModeratorChannels:
			r.reply(ctx, msg, fmt.Sprintf("Managing channels of moderator %d:", s.Target), grantsMenu())
			return
		case store.GrantingChannel, store.RevokingChannel:
			// One step back to the grants menu, keeping the target.
			var target int64
			if g, ok := sess.(store.GrantingChannel); ok {
				target = g.Target
			} else {
				target = sess.(store.RevokingChannel).Target
			}
			if err := r.st.AdvanceSession(ctx, msg.FromID, store.ManagingModeratorChannels{Target: target}); err == nil {
				r.reply(ctx, msg, fmt.Sprintf("Managing channels of moderator %d:", target), grantsMenu())
				return
			}
		case store.EditingChannel:
			if s.Channel != 0 {
				if err := r.st.AdvanceSession(ctx, msg.FromID, store.EditingChannel{}); err == nil {
					r.reply(ctx, msg, "Pick a channel to edit:", r.allChannelsMenu())
					return
				}
			}
		}
		if err := r.st.EndSession(ctx, msg.FromID); err != nil {
			r.log.Warn("ending session failed", logx.Err(err), logx.Int64("user", msg.FromID))
		}
	}
	r.reply(ctx, msg, "Main menu:", r.mainMenu(msg.FromID))
}

// ---- shared helpers ----

func (r *Router) replyStoreErr(ctx context.Context, msg *transport.Message, err error) {
	r.log.Warn("state update failed", logx.Err(err), logx.Int64("user", msg.FromID))
	if store.IsPersistFailure(err) {
		r.reply(ctx, msg, "❌ Saving state failed, nothing was changed. Try again.", nil)
		return
	}
	r.reply(ctx, msg, "❌ "+userFacing(err), nil)
}

func userFacing(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, store.ErrChannelExists):
		return "the channel already exists"
	case errors.Is(err, store.ErrDuplicateLocation):
		return "this media was already added"
	case errors.Is(err, store.ErrQueueEmpty):
		return "the queue is empty"
	case errors.Is(err, store.ErrOwnerImmutable):
		return "the owner cannot be changed"
	case errors.Is(err, store.ErrNotModerator):
		return "that user is not a moderator"
	case errors.Is(err, store.ErrNoSession), errors.Is(err, store.ErrWrongSession):
		return "no active workflow, start over from the main menu"
	case store.IsPersistFailure(err):
		return "saving state failed, try again"
	default:
		return "something went wrong"
	}
}

// parseSlotList parses "10:00, 15:00" into validated slot strings.
func parseSlotList(s string) ([]string, error) {
	parts := strings.Split(s, ",")
	times := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		if _, _, err := scheduler.ParseSlot(t); err != nil {
			return nil, fmt.Errorf("invalid time %q, want HH:MM", t)
		}
		times = append(times, t)
	}
	if len(times) == 0 {
		return nil, errors.New("no times given")
	}
	return times, nil
}
