package backend

import (
	"math"
	"time"
)

// TimeRemaining is a duration broken down into whole days, hours, minutes and seconds.
type TimeRemaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`

	total int64 // milliseconds
}

// TimeRemainingUntil breaks target - now into floored days, hours, minutes and seconds. Each unit is the
// floor of the total difference taken modulo the next larger unit. It does not clamp: when target is not
// after now the fields are zero or negative.
func TimeRemainingUntil(target, now time.Time) TimeRemaining {
	ms := float64(target.Sub(now).Milliseconds())

	return TimeRemaining{
		Days:    int64(math.Floor(ms / (1000 * 60 * 60 * 24))),
		Hours:   int64(math.Floor(math.Mod(ms/(1000*60*60), 24))),
		Minutes: int64(math.Floor(math.Mod(ms/(1000*60), 60))),
		Seconds: int64(math.Floor(math.Mod(ms/1000, 60))),
		total:   int64(ms),
	}
}

// IsElapsed reports whether the target has been reached.
func (tr TimeRemaining) IsElapsed() bool {
	return tr.total <= 0
}

// TotalHours is the whole number of hours remaining without rolling over into days.
func (tr TimeRemaining) TotalHours() int64 {
	return int64(math.Floor(float64(tr.total) / (1000 * 60 * 60)))
}
