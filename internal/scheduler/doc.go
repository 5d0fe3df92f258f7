// Package scheduler fires channel posts on their configured local-time
// slots.
//
// # Slot resolution
//
// Channels declare slots as "HH:MM" in a fixed local timezone (UTC+offset).
// Each tick resolves every slot to an absolute instant for the current
// date, spread by a fresh uniform jitter draw so posts don't land on the
// exact minute every day. Instants already more than a minute in the past
// roll to the next day.
//
// # Firing semantics
//
// A slot fires at most once per calendar date (dedup ledger) and only while
// "now" is inside the firing window around its jittered instant. Publish
// failures leave the slot unfired and retryable for the rest of the window;
// after the window closes the slot is silently missed until its next day.
// An empty queue never marks the slot fired; admins are re-alerted on every
// tick of the window instead.
package scheduler
