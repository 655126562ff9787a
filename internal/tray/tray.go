// Package tray provides a system tray front end for the scanner.
package tray

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/getlantern/systray"

	"github.com/ayusman/codescan/internal/cue"
)

// maxTitleRunes bounds the scanned content shown in the menu.
const maxTitleRunes = 40

// Tray represents the system tray application. It also acts as a visual cue:
// every signalled scan is shown as the last scan.
type Tray struct {
	onToggle       func()
	onSelectCamera func(device int)
	onPreview      func()
	onQuit         func()

	cameras  []int
	selected int
	running  bool
	last     string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLastScan *systray.MenuItem
	menuCameras  map[int]*systray.MenuItem
}

// New creates a Tray offering the given camera indices, with selected checked.
func New(cameras []int, selected int) *Tray {
	return &Tray{
		cameras:  append([]int(nil), cameras...),
		selected: selected,
	}
}

// OnToggle sets the callback called when Start/Stop is clicked.
func (t *Tray) OnToggle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSelectCamera sets the callback called when a camera is chosen.
func (t *Tray) OnSelectCamera(fn func(device int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSelectCamera = fn
}

// OnPreview sets the callback called when the preview item is clicked.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Codescan")
	systray.SetTooltip("Codescan barcode scanner")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Start or stop scanning")
	systray.AddSeparator()

	menuCamera := systray.AddMenuItem("Camera", "Choose the capture device")
	t.menuCameras = make(map[int]*systray.MenuItem, len(t.cameras))
	for _, id := range t.cameras {
		t.menuCameras[id] = menuCamera.AddSubMenuItemCheckbox(fmt.Sprintf("Camera %d", id), "", id == t.selected)
	}

	t.menuLastScan = systray.AddMenuItem(lastScanTitle(t.last), "Last scanned code")
	t.menuLastScan.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuPreview := systray.AddMenuItem("Open Preview...", "Open the live preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Codescan")

	for id, item := range t.menuCameras {
		go func(id int, item *systray.MenuItem) {
			for range item.ClickedCh {
				t.handleSelectCamera(id)
			}
		}(id, item)
	}

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the Start/Stop menu item click. The title follows
// the capture state reported through SetRunning.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	callback := t.onToggle
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleSelectCamera moves the check mark and reports the new device.
func (t *Tray) handleSelectCamera(device int) {
	t.mu.Lock()
	t.selected = device
	for id, item := range t.menuCameras {
		if id == device {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	callback := t.onSelectCamera
	t.mu.Unlock()

	if callback != nil {
		callback(device)
	}
}

func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRunning updates the Start/Stop item for the capture state.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

// Signal shows the scanned code as the last scan.
func (t *Tray) Signal(s cue.Scan) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = s.Type + ": " + truncate(s.Content, maxTitleRunes)
	if t.menuLastScan != nil {
		t.menuLastScan.SetTitle(lastScanTitle(t.last))
	}
}

// LastScan returns the text of the last scan shown, or "" if none.
func (t *Tray) LastScan() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Selected returns the checked camera index.
func (t *Tray) Selected() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected
}

// IsRunning returns the capture state last reported through SetRunning.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func toggleTitle(running bool) string {
	if running {
		return "■ Stop Scanning"
	}
	return "▶ Start Scanning"
}

func lastScanTitle(last string) string {
	if last == "" {
		return "Last: none"
	}
	return "Last: " + last
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
