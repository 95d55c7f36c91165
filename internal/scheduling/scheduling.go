// Package scheduling implements the Scheduling Engine from §4.8: slot
// search honoring business/technician hours and urgency deadlines, and
// booking with an at-most-one-booking guarantee backed by a DB unique
// constraint (see internal/storage.BookSlot) rather than an in-process
// lock, so the guarantee holds across multiple instances too.
package scheduling

import (
	"sort"
	"time"

	"github.com/snarg/fieldops/internal/domain"
)

// DefaultSlotDuration is the standard appointment length from §4.8 step 4.
const DefaultSlotDuration = 30 * time.Minute

// Slot is one candidate appointment window.
type Slot struct {
	WorkerID  string
	Start     time.Time
	End       time.Time
	Preferred bool
	Emergency bool
}

// Criteria bundles the slot-search inputs.
type Criteria struct {
	Earliest        time.Time
	Latest          time.Time
	Urgency         domain.Urgency
	PreferredWindow *domain.TimeWindow
	SlotDuration    time.Duration
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// FindSlots searches a single candidate worker's open intervals (already
// computed by intersecting business hours, worker hours, and subtracting
// existing bookings/blocked calendar intervals — §4.8 steps 2-3) and
// slices them into standard-duration slots, returning the top-N ordered by
// earliest start with preferred slots sorted first within the same day.
func FindSlots(workerID string, openIntervals []Interval, criteria Criteria, topN int) []Slot {
	start := criteria.Earliest
	now := start
	deadline := urgencyDeadline(now, criteria.Urgency)
	end := criteria.Latest
	if end.IsZero() || deadline.Before(end) {
		end = deadline
	}

	duration := criteria.SlotDuration
	if duration <= 0 {
		duration = DefaultSlotDuration
	}
	if criteria.Urgency == domain.UrgencyEmergency {
		// Emergency jobs emit one contiguous slot covering the arrival
		// window rather than being sliced into standard durations.
		duration = 0
	}

	var slots []Slot
	for _, iv := range openIntervals {
		ivStart := maxTime(iv.Start, start)
		ivEnd := minTime(iv.End, end)
		if !ivStart.Before(ivEnd) {
			continue
		}
		if duration == 0 {
			slots = append(slots, Slot{WorkerID: workerID, Start: ivStart, End: ivEnd, Emergency: true, Preferred: true})
			continue
		}
		for s := ivStart; s.Add(duration).Before(ivEnd) || s.Add(duration).Equal(ivEnd); s = s.Add(duration) {
			slot := Slot{WorkerID: workerID, Start: s, End: s.Add(duration)}
			slot.Preferred = matchesPreference(slot.Start, criteria.PreferredWindow)
			slots = append(slots, slot)
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := slots[i].Start.Truncate(24*time.Hour), slots[j].Start.Truncate(24*time.Hour)
		if !di.Equal(dj) {
			return slots[i].Start.Before(slots[j].Start)
		}
		if slots[i].Preferred != slots[j].Preferred {
			return slots[i].Preferred // preferred first within the same day
		}
		return slots[i].Start.Before(slots[j].Start)
	})

	if topN <= 0 {
		topN = 10
	}
	if len(slots) > topN {
		slots = slots[:topN]
	}
	return slots
}

func matchesPreference(start time.Time, pref *domain.TimeWindow) bool {
	if pref == nil {
		return false
	}
	return start.Weekday() == pref.Weekday && start.Hour() >= pref.StartHour && start.Hour() < pref.EndHour
}

// urgencyDeadline returns now + the urgency's max-wait duration, per §4.8
// step 1 and domain.Urgency.MaxWait.
func urgencyDeadline(now time.Time, u domain.Urgency) time.Time {
	return now.Add(u.MaxWait())
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	if a.Before(b) {
		return a
	}
	return b
}

// SubtractBusy removes busy intervals from a set of open intervals, per
// §4.8 step 3 ("subtract existing bookings ... blocked intervals").
func SubtractBusy(open []Interval, busy []Interval) []Interval {
	var result []Interval
	for _, o := range open {
		remaining := []Interval{o}
		for _, b := range busy {
			var next []Interval
			for _, r := range remaining {
				next = append(next, subtractOne(r, b)...)
			}
			remaining = next
		}
		result = append(result, remaining...)
	}
	return result
}

func subtractOne(r, b Interval) []Interval {
	if !b.Start.Before(r.End) || !r.Start.Before(b.End) {
		return []Interval{r} // no overlap
	}
	var out []Interval
	if r.Start.Before(b.Start) {
		out = append(out, Interval{Start: r.Start, End: b.Start})
	}
	if b.End.Before(r.End) {
		out = append(out, Interval{Start: b.End, End: r.End})
	}
	return out
}

// IntersectBusinessHours intersects a tenant's weekly business hours and a
// worker's weekly working hours for a single calendar day, returning the
// open interval (or nil if closed either side), per §4.8 step 2.
func IntersectBusinessHours(day time.Time, tenantHours, workerHours domain.WeeklyHours) *Interval {
	t, ok1 := tenantHours[int(day.Weekday())]
	w, ok2 := workerHours[int(day.Weekday())]
	if !ok1 || !ok2 {
		return nil
	}
	tOpen, tClose, err := parseDayHours(day, t)
	if err != nil {
		return nil
	}
	wOpen, wClose, err := parseDayHours(day, w)
	if err != nil {
		return nil
	}
	start := maxTime(tOpen, wOpen)
	end := minTime(tClose, wClose)
	if !start.Before(end) {
		return nil
	}
	return &Interval{Start: start, End: end}
}

func parseDayHours(day time.Time, h domain.DayHours) (time.Time, time.Time, error) {
	open, err := time.ParseInLocation("15:04", h.Open, day.Location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	cls, err := time.ParseInLocation("15:04", h.Close, day.Location())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	mk := func(t time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
	}
	return mk(open), mk(cls), nil
}
