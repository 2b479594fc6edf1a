/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recurrence

import (
	"fmt"
	"time"
)

// Sample is an immutable snapshot of one rule evaluated at one instant.
// Samples carry no identity and are recomputed on every call; callers own
// both the rule and the result.
type Sample struct {
	Rule             Rule      `json:"rule"`
	ReferenceInstant time.Time `json:"reference_instant"`
	NextExecution    time.Time `json:"next_execution"`
	LastExecution    time.Time `json:"last_execution"`
	IsActiveNow      bool      `json:"is_active_now"`
}

// Compute evaluates next/last execution and the active-window flag in one
// call. The sample's instants inherit ref's location.
func Compute(rule Rule, ref time.Time) (Sample, error) {
	next, err := NextExecution(rule, ref)
	if err != nil {
		return Sample{}, err
	}
	last, err := LastExecution(rule, ref)
	if err != nil {
		return Sample{}, err
	}
	active, err := IsActiveNow(rule, ref)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Rule:             rule,
		ReferenceInstant: ref,
		NextExecution:    next,
		LastExecution:    last,
		IsActiveNow:      active,
	}, nil
}

// NextExecution returns the first scheduled instant after ref.
//
// For KindDailyAt the same-day instant is returned only when it is still
// strictly in the future; otherwise the rule rolls to the next day. For
// the interval kinds the result is the next multiple of the interval at
// or above ref's minute/hour with seconds zeroed; when ref already sits
// on a multiple with nonzero seconds the current boundary is returned
// even though it is not in the future. That quirk is deliberate — the
// displayed behaviour being modelled does the same.
func NextExecution(rule Rule, ref time.Time) (time.Time, error) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}

	switch rule.Kind {
	case KindDailyAt:
		at := time.Date(ref.Year(), ref.Month(), ref.Day(), rule.Hour, rule.Minute, 0, 0, ref.Location())
		if !at.After(ref) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil

	case KindEveryMinutes:
		k := ceilMultiple(ref.Minute(), rule.Interval)
		hour := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), 0, 0, 0, ref.Location())
		if k >= 60 {
			return hour.Add(time.Hour + time.Duration(k-60)*time.Minute), nil
		}
		return hour.Add(time.Duration(k) * time.Minute), nil

	case KindEveryHours:
		k := ceilMultiple(ref.Hour(), rule.Interval)
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
		if k >= 24 {
			return day.AddDate(0, 0, 1).Add(time.Duration(k-24) * time.Hour), nil
		}
		return day.Add(time.Duration(k) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, rule.Kind)
}

// LastExecution returns the most recent scheduled instant at or before
// ref. It is the floor counterpart of NextExecution; because flooring a
// modulus never goes negative, the interval kinds need no rollback branch.
func LastExecution(rule Rule, ref time.Time) (time.Time, error) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}

	switch rule.Kind {
	case KindDailyAt:
		at := time.Date(ref.Year(), ref.Month(), ref.Day(), rule.Hour, rule.Minute, 0, 0, ref.Location())
		if at.After(ref) {
			at = at.AddDate(0, 0, -1)
		}
		return at, nil

	case KindEveryMinutes:
		k := (ref.Minute() / rule.Interval) * rule.Interval
		hour := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), 0, 0, 0, ref.Location())
		return hour.Add(time.Duration(k) * time.Minute), nil

	case KindEveryHours:
		k := (ref.Hour() / rule.Interval) * rule.Interval
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
		return day.Add(time.Duration(k) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, rule.Kind)
}

// IsActiveNow reports whether the rule's active window admits ref. Rules
// without a window are always active. Windows with StartHour > EndHour
// never match (non-wraparound policy, see Window).
func IsActiveNow(rule Rule, ref time.Time) (bool, error) {
	if err := rule.Validate(); err != nil {
		return false, err
	}
	if rule.Window == nil {
		return true, nil
	}
	return rule.Window.Contains(ref.Hour()), nil
}

func ceilMultiple(value, step int) int {
	return ((value + step - 1) / step) * step
}
