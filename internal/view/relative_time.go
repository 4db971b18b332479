package view

import (
	"fmt"
	"time"
)

// RelativeTime renders t as a short recency label relative to now. A zero or
// nonsensical timestamp falls back to "Recently" rather than erroring; the
// label is display sugar, never a failure path.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "Recently"
	}

	d := now.Sub(t)
	switch {
	case d < 0:
		// Clock skew between client and server; don't render negative ages.
		return "Just now"
	case d < time.Minute:
		return "Just now"
	case d < 2*time.Minute:
		return "1 minute ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 2*time.Hour:
		return "1 hour ago"
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "1 day ago"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
