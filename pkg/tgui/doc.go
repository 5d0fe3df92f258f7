// Package tgui provides small Telegram UI helpers:
//   - Reply keyboard builders (persistent menu keyboards)
//   - Text helpers for building plain-text menus and listings
//
// Design goals:
//   - Ergonomic for menu-driven bots (one builder per screen)
//   - Keyboards are plain label buttons; button text doubles as the command
package tgui
