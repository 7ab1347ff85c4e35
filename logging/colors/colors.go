package colors

import "fmt"

// Color is an ANSI SGR code.
type Color int

// Codes taken from zerolog's console writer.
const (
	RED Color = iota + 31
	GREEN
	YELLOW
	BLUE
	MAGENTA
	CYAN
	// BOLD is the ANSI code for bold text
	BOLD Color = 1
	// DARK_GRAY is the ANSI code for dark gray
	DARK_GRAY Color = 90
)

// LEFT_ARROW is the glyph prefixed to info-level console lines.
const LEFT_ARROW = "⇾"

// ColorFunc is an alias type for a coloring function that accepts anything and returns a colorized string. Passing one
// to a logging call switches the color context for every following argument.
type ColorFunc = func(s any) string

// enabled reports whether Colorize emits escape codes at all.
var enabled = true

// DisableColor turns every ColorFunc into a plain formatter.
func DisableColor() {
	enabled = false
}

// Reset returns the input as a string, dropping any active color context.
func Reset(s any) string {
	return fmt.Sprintf("%v", s)
}

// Bold returns a bolded string of the provided input
func Bold(s any) string { return Colorize(s, BOLD) }

// Red returns a red-colorized string of the provided input
func Red(s any) string { return Colorize(s, RED) }

// RedBold returns a red-bold-colorized string of the provided input
func RedBold(s any) string { return Colorize(Colorize(s, RED), BOLD) }

// Green returns a green-colorized string of the provided input
func Green(s any) string { return Colorize(s, GREEN) }

// GreenBold returns a green-bold-colorized string of the provided input
func GreenBold(s any) string { return Colorize(Colorize(s, GREEN), BOLD) }

// Yellow returns a yellow-colorized string of the provided input
func Yellow(s any) string { return Colorize(s, YELLOW) }

// YellowBold returns a yellow-bold-colorized string of the provided input
func YellowBold(s any) string { return Colorize(Colorize(s, YELLOW), BOLD) }

// BlueBold returns a blue-bold-colorized string of the provided input
func BlueBold(s any) string { return Colorize(Colorize(s, BLUE), BOLD) }

// Magenta returns a magenta-colorized string of the provided input
func Magenta(s any) string { return Colorize(s, MAGENTA) }

// CyanBold returns a cyan-bold-colorized string of the provided input
func CyanBold(s any) string { return Colorize(Colorize(s, CYAN), BOLD) }

// DarkGray returns a dark-gray-colorized string of the provided input
func DarkGray(s any) string { return Colorize(s, DARK_GRAY) }

// init makes sure the terminal is able to render ANSI escape codes.
func init() {
	EnableColor()
}
