//go:build !windows

package colors

import "fmt"

// EnableColor is a no-op outside of windows, where ANSI escape codes are always supported.
func EnableColor() {}

// Colorize returns the string s wrapped in ANSI code c
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
