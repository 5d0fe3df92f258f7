package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Reply is a small builder for persistent reply keyboards.
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Reply().
type Reply struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewReply() *Reply {
	return &Reply{rm: &tele.ReplyMarkup{ResizeKeyboard: true}}
}

// Row appends a new row of plain label buttons.
func (r *Reply) Row(labels ...string) *Reply {
	btns := make([]tele.Btn, 0, len(labels))
	for _, l := range labels {
		btns = append(btns, tele.Btn{Text: l})
	}
	r.rows = append(r.rows, r.rm.Row(btns...))
	r.rm.Reply(r.rows...)
	return r
}

// Markup returns the underlying reply markup.
func (r *Reply) Markup() *tele.ReplyMarkup { return r.rm }

// Grid splits labels into rows of the given width and returns a ready markup.
func Grid(width int, labels []string) *tele.ReplyMarkup {
	if width <= 0 {
		width = 2
	}
	r := NewReply()
	for i := 0; i < len(labels); i += width {
		end := i + width
		if end > len(labels) {
			end = len(labels)
		}
		r.Row(labels[i:end]...)
	}
	return r.Markup()
}

// Remove returns a markup that hides any previously shown reply keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
