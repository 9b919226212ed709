package shell

import (
	"fmt"
	"regexp"
	"strings"
)

// ANSI escape sequences used by the printer.
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Black   = "\033[30m"
)

// markerPattern matches the in-game color markers ^0 through ^7.
var markerPattern = regexp.MustCompile(`\^[0-7]`)

var markerColors = map[string]string{
	"^0": Black,
	"^1": Red,
	"^2": Green,
	"^3": Yellow,
	"^4": Blue,
	"^5": Cyan,
	"^6": Magenta,
	"^7": White,
}

// StripColors removes color markers. Applying it twice is the same as once.
func StripColors(text string) string {
	for {
		stripped := markerPattern.ReplaceAllString(text, "")
		if stripped == text {
			return stripped
		}
		text = stripped
	}
}

// displayText is the text RenderColors shows, minus the colors: markers are
// removed in a single pass so that "^^11" still displays as "^1".
func displayText(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}

// RenderColors replaces color markers with ANSI sequences.
func RenderColors(text string) string {
	if !markerPattern.MatchString(text) {
		return text
	}
	var b strings.Builder
	b.WriteString(markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		return markerColors[marker]
	}))
	b.WriteString(Reset)
	return b.String()
}

// CountColor picks the color for an occupancy count by how full the server is.
func CountColor(occupancy, capacity int) string {
	switch {
	case occupancy == capacity:
		return Red
	case occupancy >= capacity-2:
		return Yellow
	case float64(occupancy) >= float64(capacity)*0.7:
		return Green
	case float64(occupancy) >= float64(capacity)*0.4:
		return Cyan
	case occupancy > 0:
		return Magenta
	default:
		return White
	}
}

func formatCount(occupancy, capacity int, color bool) string {
	count := fmt.Sprintf("[%2d/%2d]", occupancy, capacity)
	if !color {
		return count
	}
	return CountColor(occupancy, capacity) + count + Reset
}
