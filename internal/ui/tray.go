package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/minicut/minicut-agent/internal/convert"
)

type Tray struct {
	conversions *convert.Service
	logger      *slog.Logger

	statusItem *systray.MenuItem
	jobsItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	Conversions *convert.Service
	Logger      *slog.Logger
	OnQuit      func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		conversions: cfg.Conversions,
		logger:      cfg.Logger,
		onQuit:      cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Minicut")
	systray.SetTooltip("Minicut Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.jobsItem = systray.AddMenuItem("Conversions: 0 done", "Completed conversion jobs")
	t.jobsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause conversions", "Pause the conversion queue")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Minicut Agent")

	events, cancel := t.conversions.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case ev, ok := <-events:
				if !ok {
					return
				}
				t.handleProgress(ev)
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversions.Paused() {
		t.conversions.SetPaused(false)
		t.pauseItem.SetTitle("Pause conversions")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.conversions.SetPaused(true)
		t.pauseItem.SetTitle("Resume conversions")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleProgress(ev convert.ProgressEvent) {
	switch ev.Status {
	case convert.StatusAnalyzing:
		t.updateStatus("Analyzing")
	case convert.StatusConverting:
		t.updateStatus(fmt.Sprintf("Converting %d%%", int(ev.Progress)))
	case convert.StatusCompleted, convert.StatusError:
		t.updateStatus("Idle")
		t.refreshJobCount()
	}
}

func (t *Tray) updateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversions.Paused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) refreshJobCount() {
	done := 0
	for _, job := range t.conversions.Jobs() {
		if job.Status == convert.StatusCompleted {
			done++
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobsItem.SetTitle(fmt.Sprintf("Conversions: %d done", done))
}

func (t *Tray) Quit() {
	systray.Quit()
}
