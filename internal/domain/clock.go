package domain

import "github.com/jonboulle/clockwork"

// clock stamps new recommendations.
var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock replaces the clock used by NewRecommendation and returns a func
// that restores the previous one.
func SetClock(c clockwork.Clock) (restore func()) {
	prev := clock
	clock = c
	return func() { clock = prev }
}
