/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recurrence

import (
	"fmt"
	"math"
	"time"
)

// FormatCountdown renders the time remaining until next as a short
// dashboard label. The difference is rounded to whole minutes; at or past
// next it reports "NOW". Days drop the minute component, hours are shown
// with minutes only while days is zero.
func FormatCountdown(next, ref time.Time) string {
	diff := int(math.Round(next.Sub(ref).Minutes()))
	if diff <= 0 {
		return "NOW"
	}

	days := diff / (24 * 60)
	hours := (diff % (24 * 60)) / 60
	minutes := diff % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	}
	return "NOW"
}
