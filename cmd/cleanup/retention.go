package cleanup

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// parseRetention accepts Go durations plus a whole-day "d" suffix.
func parseRetention(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid retention %q: days must be a positive integer", raw)
		}
		return time.Duration(n) * day, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid retention %q: must be positive", raw)
	}
	return d, nil
}
