/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recurrence implements the periodic schedule model used by the
// automation engine and the dashboard's countdown displays. Everything in
// this package is pure: the reference instant is always passed in by the
// caller and no function reads the wall clock or ambient timezone state.
package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Kind selects the arithmetic used to expand a rule.
type Kind string

const (
	// KindDailyAt fires once per day at a fixed hour:minute.
	KindDailyAt Kind = "daily_at"
	// KindEveryMinutes fires at minute-of-hour multiples of Interval.
	KindEveryMinutes Kind = "every_minutes"
	// KindEveryHours fires at hour-of-day multiples of Interval.
	KindEveryHours Kind = "every_hours"
)

// ErrInvalidRule is returned when a rule violates its invariants
// (out-of-range hour/minute, non-positive interval, unknown kind).
// Callers are expected to validate configuration before scheduling;
// nothing in this package recovers from it.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Window restricts a rule to an inclusive hour-of-day range.
// A window with StartHour > EndHour does not wrap past midnight: such a
// window never matches and the rule reports inactive at every instant.
type Window struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether the hour falls inside the window.
func (w Window) Contains(hour int) bool {
	if w.StartHour > w.EndHour {
		return false
	}
	return hour >= w.StartHour && hour <= w.EndHour
}

// Rule is a declarative description of a repeating schedule.
// Hour/Minute apply to KindDailyAt; Interval applies to the two interval
// kinds. Window is optional and independent of the recurrence timing.
type Rule struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Hour     int     `json:"hour,omitempty"`
	Minute   int     `json:"minute,omitempty"`
	Interval int     `json:"interval,omitempty"`
	Window   *Window `json:"window,omitempty"`
}

// Validate checks the rule's invariants, wrapping ErrInvalidRule with the
// offending field so errors.Is keeps working at call sites.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindDailyAt:
		if r.Hour < 0 || r.Hour > 23 {
			return fmt.Errorf("%w: hour %d out of range [0,23]", ErrInvalidRule, r.Hour)
		}
		if r.Minute < 0 || r.Minute > 59 {
			return fmt.Errorf("%w: minute %d out of range [0,59]", ErrInvalidRule, r.Minute)
		}
	case KindEveryMinutes, KindEveryHours:
		if r.Interval < 1 {
			return fmt.Errorf("%w: interval %d must be >= 1", ErrInvalidRule, r.Interval)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}

	if w := r.Window; w != nil {
		if w.StartHour < 0 || w.StartHour > 23 {
			return fmt.Errorf("%w: window start hour %d out of range [0,23]", ErrInvalidRule, w.StartHour)
		}
		if w.EndHour < 0 || w.EndHour > 23 {
			return fmt.Errorf("%w: window end hour %d out of range [0,23]", ErrInvalidRule, w.EndHour)
		}
	}

	return nil
}

// Period returns the nominal distance between two executions.
func (r Rule) Period() time.Duration {
	switch r.Kind {
	case KindDailyAt:
		return 24 * time.Hour
	case KindEveryMinutes:
		return time.Duration(r.Interval) * time.Minute
	case KindEveryHours:
		return time.Duration(r.Interval) * time.Hour
	}
	return 0
}

// RRule returns the RFC 5545 label for the rule, used by schedule exports.
// It is presentation only; the expansion arithmetic in this package stays
// authoritative.
func (r Rule) RRule() string {
	switch r.Kind {
	case KindDailyAt:
		return fmt.Sprintf("FREQ=DAILY;BYHOUR=%d;BYMINUTE=%d;BYSECOND=0", r.Hour, r.Minute)
	case KindEveryMinutes:
		return fmt.Sprintf("FREQ=MINUTELY;INTERVAL=%d", r.Interval)
	case KindEveryHours:
		return fmt.Sprintf("FREQ=HOURLY;INTERVAL=%d", r.Interval)
	}
	return ""
}
