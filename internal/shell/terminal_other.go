//go:build !windows

package shell

import "os"

// EnableVirtualTerminal is a no-op where terminals understand ANSI natively.
func EnableVirtualTerminal(f *os.File) error {
	return nil
}
