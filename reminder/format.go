package reminder

import (
	"strconv"
	"strings"
	"time"
)

// FormatDelta renders a duration as a compact multi-unit string like
// "1d 2h 5m 30s", omitting zero-valued leading units. Sub-second durations
// come out as "0s".
func FormatDelta(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	periods := []struct {
		suffix  string
		seconds int64
	}{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
	}
	var parts []string
	for _, p := range periods {
		if total >= p.seconds {
			parts = append(parts, strconv.FormatInt(total/p.seconds, 10)+p.suffix)
			total %= p.seconds
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
