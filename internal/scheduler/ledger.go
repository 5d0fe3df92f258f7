package scheduler

import "time"

// Ledger records which (channel, calendar date, slot) triples already fired,
// enforcing at most one post per slot per day. It is owned by the tick loop
// and needs no locking. Entries older than the retention window are pruned
// so the map stays bounded over long uptimes.
type Ledger struct {
	fired map[ledgerKey]bool
}

type ledgerKey struct {
	Channel int64
	Date    string // "2006-01-02", from the slot instant's UTC date
	Slot    string
}

const ledgerRetention = 48 * time.Hour

func NewLedger() *Ledger {
	return &Ledger{fired: map[ledgerKey]bool{}}
}

func key(channelID int64, at time.Time, slot string) ledgerKey {
	return ledgerKey{Channel: channelID, Date: at.UTC().Format("2006-01-02"), Slot: slot}
}

func (l *Ledger) Fired(channelID int64, at time.Time, slot string) bool {
	return l.fired[key(channelID, at, slot)]
}

func (l *Ledger) MarkFired(channelID int64, at time.Time, slot string) {
	l.fired[key(channelID, at, slot)] = true
}

// Prune drops entries whose date is older than the retention window.
func (l *Ledger) Prune(now time.Time) {
	cutoff := now.UTC().Add(-ledgerRetention).Format("2006-01-02")
	for k := range l.fired {
		if k.Date < cutoff {
			delete(l.fired, k)
		}
	}
}

func (l *Ledger) Len() int { return len(l.fired) }
