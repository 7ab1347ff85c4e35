//go:build windows

package colors

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	procGetConsoleMode = kernel32.NewProc("GetConsoleMode")
)

// EnableColor asks the kernel whether stdout processes virtual terminal sequences and disables coloring otherwise.
func EnableColor() {
	var mode uint32
	r, _, _ := procGetConsoleMode.Call(os.Stdout.Fd(), uintptr(unsafe.Pointer(&mode)))
	enabled = r != 0 && mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0
}

// Colorize returns the string s wrapped in ANSI code c when the console supports it
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
