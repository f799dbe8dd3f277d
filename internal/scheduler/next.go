package scheduler

import "time"

// NextDaily returns the first hour:minute in loc strictly after now.
func NextDaily(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !run.After(local) {
		run = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return run
}

// NextAligned returns the first multiple of every after local midnight that
// is strictly after now, rolling over to the next midnight. With every=2h
// this fires at 00:00, 02:00, … 22:00 local.
func NextAligned(now time.Time, loc *time.Location, every time.Duration) time.Time {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if every <= 0 {
		return midnight.AddDate(0, 0, 1)
	}
	elapsed := local.Sub(midnight)
	next := midnight.Add((elapsed/every + 1) * every)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	if !next.Before(tomorrow) {
		return tomorrow
	}
	return next
}
