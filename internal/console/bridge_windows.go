//go:build windows

package console

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	winmm  = windows.NewLazySystemDLL("winmm.dll")

	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procSendMessageW         = user32.NewProc("SendMessageW")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
	procShowWindow           = user32.NewProc("ShowWindow")
	procIsIconic             = user32.NewProc("IsIconic")
	procSendInput            = user32.NewProc("SendInput")
	procPlaySoundW           = winmm.NewProc("PlaySoundW")
)

const (
	wmGetText        = 0x000D
	wmGetTextLength  = 0x000E
	swRestore        = 9
	inputKeyboard    = 1
	keyeventfKeyUp   = 0x0002
	keyeventfUnicode = 0x0004
	vkReturn         = 0x0D
	sndFilename      = 0x00020000
	sndNoDefault     = 0x0002
)

// keyboardInput mirrors INPUT with the KEYBDINPUT arm of the union; the
// trailing padding brings it to sizeof(INPUT) on 32 and 64 bit.
type keyboardInput struct {
	typ uint32
	ki  keybdInput
	_   [8]byte
}

type keybdInput struct {
	vk        uint16
	scan      uint16
	flags     uint32
	time      uint32
	extraInfo uintptr
}

var (
	enumMu    sync.Mutex
	enumVisit func(windows.HWND) bool
	enumProc  = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		if enumVisit != nil && !enumVisit(hwnd) {
			return 0
		}
		return 1
	})
)

type windowsBridge struct {
	cfg     Config
	pattern *regexp.Regexp
	logger  *log.Logger
}

type windowsReader struct {
	control windows.HWND
	tracker *deltaTracker
}

func newSystemBridge(cfg Config, pattern *regexp.Regexp, deps Dependencies) (Bridge, error) {
	return &windowsBridge{cfg: cfg, pattern: pattern, logger: deps.Logger}, nil
}

func (b *windowsBridge) IssueConnect(ctx context.Context, endpoint string) error {
	hwnd, title, ok := findTopWindow(func(title string) bool { return b.pattern.MatchString(title) })
	if !ok {
		return fmt.Errorf("%w: no window matches %q", ErrClientNotFound, b.pattern.String())
	}
	b.logger.Printf("focusing client window %q", title)
	focus(hwnd)
	if err := sleepCtx(ctx, b.cfg.FocusDelay); err != nil {
		return err
	}
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("%w: window %q closed", ErrClientNotFound, title)
	}
	return typeLine(ConnectCommand(endpoint))
}

func (b *windowsBridge) OpenConsole(ctx context.Context) (Reader, error) {
	hwnd, title, ok := findTopWindow(func(title string) bool { return b.pattern.MatchString(title) })
	if !ok {
		return nil, fmt.Errorf("%w: no window matches %q", ErrClientNotFound, b.pattern.String())
	}
	var (
		control  windows.HWND
		baseline string
	)
	enumerate(hwnd, func(child windows.HWND) bool {
		if className(child) != b.cfg.TerminalClass {
			return true
		}
		text := controlText(child)
		if !strings.HasPrefix(text, b.cfg.TerminalPrefix) {
			return true
		}
		control = child
		baseline = text
		return false
	})
	if control == 0 {
		return nil, fmt.Errorf("%w: window %q has no %s control", ErrTerminalNotFound, title, b.cfg.TerminalClass)
	}
	return &windowsReader{control: control, tracker: newDeltaTracker(baseline)}, nil
}

func (b *windowsBridge) Celebrate(ctx context.Context) error {
	if b.cfg.GameTitle != "" {
		if hwnd, _, ok := findTopWindow(func(title string) bool { return strings.Contains(title, b.cfg.GameTitle) }); ok {
			focus(hwnd)
		}
	}
	if b.cfg.SoundFile == "" {
		return nil
	}
	path, err := windows.UTF16PtrFromString(b.cfg.SoundFile)
	if err != nil {
		return fmt.Errorf("sound path: %w", err)
	}
	r, _, callErr := procPlaySoundW.Call(uintptr(unsafe.Pointer(path)), 0, sndFilename|sndNoDefault)
	if r == 0 {
		return fmt.Errorf("play sound %q: %w", b.cfg.SoundFile, callErr)
	}
	return nil
}

func (r *windowsReader) ReadDelta(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !windows.IsWindow(r.control) {
		return "", fmt.Errorf("%w: console control closed", ErrTerminalNotFound)
	}
	return r.tracker.next(controlText(r.control)), nil
}

// enumerate walks top-level windows when parent is 0, otherwise the
// descendants of parent. visit returns false to stop.
func enumerate(parent windows.HWND, visit func(windows.HWND) bool) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumVisit = visit
	defer func() { enumVisit = nil }()
	if parent == 0 {
		_ = windows.EnumWindows(enumProc, nil)
		return
	}
	windows.EnumChildWindows(parent, enumProc, nil)
}

func findTopWindow(match func(title string) bool) (windows.HWND, string, bool) {
	var (
		found windows.HWND
		title string
	)
	enumerate(0, func(hwnd windows.HWND) bool {
		if !windows.IsWindowVisible(hwnd) {
			return true
		}
		t := windowTitle(hwnd)
		if t == "" || !match(t) {
			return true
		}
		found, title = hwnd, t
		return false
	})
	return found, title, found != 0
}

func windowTitle(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

// controlText uses WM_GETTEXT, which unlike GetWindowText works for controls
// owned by another process.
func controlText(hwnd windows.HWND) string {
	n, _, _ := procSendMessageW.Call(uintptr(hwnd), wmGetTextLength, 0, 0)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procSendMessageW.Call(uintptr(hwnd), wmGetText, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	return windows.UTF16ToString(buf)
}

func className(hwnd windows.HWND) string {
	buf := make([]uint16, 256)
	n, err := windows.GetClassName(hwnd, &buf[0], int32(len(buf)))
	if err != nil || n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func focus(hwnd windows.HWND) {
	if iconic, _, _ := procIsIconic.Call(uintptr(hwnd)); iconic != 0 {
		procShowWindow.Call(uintptr(hwnd), swRestore)
	}
	procSetForegroundWindow.Call(uintptr(hwnd))
}

func typeLine(text string) error {
	units, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("encode keystrokes: %w", err)
	}
	units = units[:len(units)-1]

	inputs := make([]keyboardInput, 0, 2*len(units)+2)
	for _, u := range units {
		inputs = append(inputs,
			keyboardInput{typ: inputKeyboard, ki: keybdInput{scan: u, flags: keyeventfUnicode}},
			keyboardInput{typ: inputKeyboard, ki: keybdInput{scan: u, flags: keyeventfUnicode | keyeventfKeyUp}},
		)
	}
	inputs = append(inputs,
		keyboardInput{typ: inputKeyboard, ki: keybdInput{vk: vkReturn}},
		keyboardInput{typ: inputKeyboard, ki: keybdInput{vk: vkReturn, flags: keyeventfKeyUp}},
	)

	sent, _, callErr := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("send keystrokes: injected %d of %d events: %w", sent, len(inputs), callErr)
	}
	return nil
}
