/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recurrence

import (
	"testing"
	"time"
)

func TestFormatCountdown(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		next time.Time
		want string
	}{
		{name: "zero", next: ref, want: "NOW"},
		{name: "past", next: ref.Add(-5 * time.Minute), want: "NOW"},
		{name: "sub-minute rounds down to now", next: ref.Add(20 * time.Second), want: "NOW"},
		{name: "sub-minute rounds up", next: ref.Add(40 * time.Second), want: "1m"},
		{name: "minutes only", next: ref.Add(6 * time.Minute), want: "6m"},
		{name: "fifty nine minutes", next: ref.Add(59 * time.Minute), want: "59m"},
		{name: "exactly one hour", next: ref.Add(60 * time.Minute), want: "1h 0m"},
		{name: "hours and minutes", next: ref.Add(3*time.Hour + 25*time.Minute), want: "3h 25m"},
		{name: "just under a day", next: ref.Add(23*time.Hour + 59*time.Minute), want: "23h 59m"},
		{name: "exactly one day", next: ref.Add(1440 * time.Minute), want: "1d 0h"},
		{name: "days and hours drop minutes", next: ref.Add(49*time.Hour + 30*time.Minute), want: "2d 1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCountdown(tt.next, ref); got != tt.want {
				t.Fatalf("FormatCountdown() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuleRRule(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{name: "daily", rule: Rule{Kind: KindDailyAt, Hour: 8, Minute: 30}, want: "FREQ=DAILY;BYHOUR=8;BYMINUTE=30;BYSECOND=0"},
		{name: "minutely", rule: Rule{Kind: KindEveryMinutes, Interval: 10}, want: "FREQ=MINUTELY;INTERVAL=10"},
		{name: "hourly", rule: Rule{Kind: KindEveryHours, Interval: 2}, want: "FREQ=HOURLY;INTERVAL=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.RRule(); got != tt.want {
				t.Fatalf("RRule() = %q, want %q", got, tt.want)
			}
		})
	}
}
