package bot

import (
	"fmt"
	"strconv"
	"strings"

	"creatorfeed/internal/model"
)

// ParseChannelID extracts a channel id from command arguments.
func ParseChannelID(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", fmt.Errorf("channel ID is required")
	}
	return fields[0], nil
}

// ParseIndexArg extracts a 1-based list position from command arguments.
func ParseIndexArg(args string) (int, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("number is required")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number %q", fields[0])
	}
	return n, nil
}

// FindChannel returns the roster position referenced by ref, either a
// channel id or a 1-based list number, or -1.
func FindChannel(roster []model.Channel, ref string) int {
	ref = strings.TrimSpace(ref)
	for i, ch := range roster {
		if ch.ID == ref {
			return i
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(roster) {
		return n - 1
	}
	return -1
}
