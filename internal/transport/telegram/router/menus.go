package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/store"
	"postbot/internal/transport"
	"postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// Button labels double as commands: the reply keyboard sends the label back
// as plain text.
const (
	btnAddMedia       = "📤 Add media"
	btnManageUsers    = "👥 Manage users"
	btnManageChannels = "📺 Manage channels"
	btnStatus         = "📊 Status"
	btnHelp           = "❓ Help"
	btnBack           = "🔙 Back"
	btnFinishUpload   = "✅ Finish upload"

	btnAddModerator  = "➕ Add moderator"
	btnAddAdmin      = "➕ Add admin"
	btnModChannels   = "🔧 Assign moderator channels"
	btnRemoveUser    = "🗑 Remove user"
	btnListUsers     = "📊 List users"
	btnGrantChannel  = "➕ Grant channel"
	btnRevokeChannel = "➖ Revoke channel"
	btnShowGrants    = "📋 Show moderator channels"

	btnAddChannel    = "➕ Add channel"
	btnListChannels  = "📋 List channels"
	btnEditChannel   = "✏️ Edit channel"
	btnDeleteChannel = "🗑 Delete channel"
	btnEditName      = "📝 Edit name"
	btnEditText      = "📝 Edit post text"
	btnEditTimes     = "⏰ Edit post times"

	channelPrefix = "📺 "
	deletePrefix  = "🗑 "

	msgNoPermission = "⛔ You don't have permission to do that"
)

func (r *Router) mainMenu(userID int64) *tele.ReplyMarkup {
	kb := tgui.NewReply()
	if r.st.HasPermission(userID, store.RoleModerator) {
		kb.Row(btnAddMedia)
	}
	if r.st.HasPermission(userID, store.RoleAdmin) {
		kb.Row(btnManageUsers)
	}
	if r.st.HasPermission(userID, store.RoleOwner) {
		kb.Row(btnManageChannels)
	}
	kb.Row(btnStatus, btnHelp)
	return kb.Markup()
}

// channelMenu lists the channels the user may act on, one per row.
func (r *Router) channelMenu(userID int64) *tele.ReplyMarkup {
	kb := tgui.NewReply()
	for _, id := range r.st.AccessibleChannels(userID) {
		if ch, ok := r.st.Channel(id); ok {
			kb.Row(channelPrefix + ch.Name)
		}
	}
	kb.Row(btnBack)
	return kb.Markup()
}

// allChannelsMenu lists every channel regardless of grants (admin flows).
func (r *Router) allChannelsMenu() *tele.ReplyMarkup {
	kb := tgui.NewReply()
	for _, ch := range r.st.Channels() {
		kb.Row(channelPrefix + ch.Name)
	}
	kb.Row(btnBack)
	return kb.Markup()
}

func adminMenu() *tele.ReplyMarkup {
	return tgui.NewReply().
		Row(btnAddModerator, btnAddAdmin).
		Row(btnModChannels, btnRemoveUser).
		Row(btnListUsers, btnBack).
		Markup()
}

func ownerMenu() *tele.ReplyMarkup {
	return tgui.NewReply().
		Row(btnAddChannel, btnListChannels).
		Row(btnEditChannel, btnDeleteChannel).
		Row(btnBack).
		Markup()
}

func editMenu() *tele.ReplyMarkup {
	return tgui.NewReply().
		Row(btnEditName, btnEditText).
		Row(btnEditTimes, btnBack).
		Markup()
}

func grantsMenu() *tele.ReplyMarkup {
	return tgui.NewReply().
		Row(btnGrantChannel, btnRevokeChannel).
		Row(btnShowGrants, btnBack).
		Markup()
}

func deleteMenu(channels []store.ChannelInfo) *tele.ReplyMarkup {
	kb := tgui.NewReply()
	for _, ch := range channels {
		kb.Row(deletePrefix + ch.Name)
	}
	kb.Row(btnBack)
	return kb.Markup()
}

func uploadMenu() *tele.ReplyMarkup {
	return tgui.NewReply().Row(btnFinishUpload).Row(btnBack).Markup()
}

// reply sends text back to the message's chat with an optional keyboard.
func (r *Router) reply(ctx context.Context, msg *transport.Message, text string, markup *tele.ReplyMarkup) {
	opt := &transport.SendOptions{DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	if err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Err(err), logx.Int64("chat", msg.ChatID))
	}
}

// channelByName resolves a "📺 Name" button press against a channel list.
func channelByName(channels []store.ChannelInfo, label, prefix string) (store.ChannelInfo, bool) {
	name := strings.TrimSpace(strings.TrimPrefix(label, prefix))
	for _, ch := range channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return store.ChannelInfo{}, false
}

func roleLabel(role store.Role) string {
	switch role {
	case store.RoleOwner:
		return "👑 owner"
	case store.RoleAdmin:
		return "🛡 admin"
	case store.RoleModerator:
		return "🛠 moderator"
	default:
		return "user"
	}
}

func mediaLabel(kind transport.MediaKind) string {
	if kind == transport.MediaVideo {
		return "Video"
	}
	return "Photo"
}

func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
