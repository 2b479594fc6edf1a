/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"testing"
	"time"
)

func TestRingEviction(t *testing.T) {
	b := New(3)
	for i, msg := range []string{"one", "two", "three", "four"} {
		b.Add(Entry{Message: msg, Timestamp: time.Unix(int64(i), 0)})
	}

	all := b.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Message != "two" || all[2].Message != "four" {
		t.Fatalf("order = %q, %q, %q", all[0].Message, all[1].Message, all[2].Message)
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(16)
	base := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	b.Add(Entry{Level: "info", Component: "automation", Message: "rule dispatched", Timestamp: base, Fields: map[string]any{"channel_id": "chan-1"}})
	b.Add(Entry{Level: "warn", Component: "automation", Message: "delivery skipped", Timestamp: base.Add(time.Minute), Fields: map[string]any{"channel_id": "chan-2"}})
	b.Add(Entry{Level: "error", Component: "coupons", Message: "creative upload failed", Timestamp: base.Add(2 * time.Minute)})

	if got := b.Query(QueryParams{Level: "warn"}); len(got) != 1 || got[0].Message != "delivery skipped" {
		t.Fatalf("level filter = %+v", got)
	}
	if got := b.Query(QueryParams{ChannelID: "chan-1"}); len(got) != 1 || got[0].Message != "rule dispatched" {
		t.Fatalf("channel filter = %+v", got)
	}
	if got := b.Query(QueryParams{Search: "CREATIVE"}); len(got) != 1 || got[0].Component != "coupons" {
		t.Fatalf("search filter = %+v", got)
	}
	if got := b.Query(QueryParams{Since: base.Add(30 * time.Second)}); len(got) != 2 {
		t.Fatalf("since filter returned %d entries", len(got))
	}
	if got := b.Query(QueryParams{Descending: true, Limit: 1}); len(got) != 1 || got[0].Component != "coupons" {
		t.Fatalf("descending limit = %+v", got)
	}
}

func TestWriterParsesZerologOutput(t *testing.T) {
	b := New(8)
	w := NewWriter(b, nil)

	line := []byte(`{"level":"info","component":"automation","channel_id":"chan-1","time":1766232000,"message":"rule dispatched"}`)
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Non-JSON passes through without buffering.
	if _, err := w.Write([]byte("plain text line")); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	all := b.All()
	if len(all) != 1 {
		t.Fatalf("buffered %d entries, want 1", len(all))
	}
	entry := all[0]
	if entry.Level != "info" || entry.Component != "automation" || entry.Message != "rule dispatched" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Fields["channel_id"] != "chan-1" {
		t.Fatalf("fields = %+v", entry.Fields)
	}
	if entry.Timestamp.Unix() != 1766232000 {
		t.Fatalf("timestamp = %v", entry.Timestamp)
	}
}

func TestStatsAndComponents(t *testing.T) {
	b := New(8)
	b.Add(Entry{Level: "info", Component: "automation"})
	b.Add(Entry{Level: "info", Component: "coupons"})
	b.Add(Entry{Level: "error", Component: "automation"})

	stats := b.Stats()
	if stats.Count != 3 || stats.LevelCount["info"] != 2 || stats.LevelCount["error"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(b.Components()) != 2 {
		t.Fatalf("components = %v", b.Components())
	}

	b.Clear()
	if b.Stats().Count != 0 {
		t.Fatal("clear did not empty the buffer")
	}
}
