package youtube

import (
	"fmt"
	"strconv"
)

// FormatSubscribers renders a subscriber count as 1.2M, 3.4K or the plain number.
func FormatSubscribers(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatUint(n, 10)
	}
}
