package scheduler

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SlotTime pairs a configured slot label ("10:00" local) with the concrete
// jittered instant it resolves to for the current tick.
type SlotTime struct {
	Label string
	At    time.Time
}

// ParseSlot validates a "HH:MM" local-time slot and returns its parts.
func ParseSlot(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid slot %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid slot %q: bad hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid slot %q: bad minute", s)
	}
	return hour, minute, nil
}

// ValidateSlots rejects a slot list containing any malformed entry.
func ValidateSlots(slots []string) error {
	for _, s := range slots {
		if _, _, err := ParseSlot(s); err != nil {
			return err
		}
	}
	return nil
}

// SlotTimes resolves each slot label to an absolute instant for "today":
// the local time-of-day minus the fixed UTC offset, plus a fresh uniform
// jitter draw in [-jitterMin, +jitterMin] minutes. An instant more than one
// minute in the past rolls forward a day.
//
// The jitter is re-drawn on every call, so a tick must resolve slots once
// and reuse the result for both the firing-window check and the dedup key.
// Malformed labels are skipped. The result is sorted ascending by instant;
// the order is for display only, firing evaluates every slot independently.
func SlotTimes(slots []string, now time.Time, utcOffset int, jitterMin int, rng *rand.Rand) []SlotTime {
	now = now.UTC()
	out := make([]SlotTime, 0, len(slots))
	for _, label := range slots {
		h, m, err := ParseSlot(label)
		if err != nil {
			continue
		}
		utcHour := ((h-utcOffset)%24 + 24) % 24
		at := time.Date(now.Year(), now.Month(), now.Day(), utcHour, m, 0, 0, time.UTC)
		if jitterMin > 0 && rng != nil {
			span := int64(2*jitterMin + 1)
			at = at.Add(time.Duration(rng.Int63n(span)-int64(jitterMin)) * time.Minute)
		}
		if at.Before(now.Add(-time.Minute)) {
			at = at.Add(24 * time.Hour)
		}
		out = append(out, SlotTime{Label: label, At: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
