package notify

import (
	"tradeengine/src/model"
)

// Notifier is the fire-and-forget notification sink. Implementations must
// never block or fail the pipeline; delivery errors are logged and dropped.
type Notifier interface {
	NotifySignal(sig *model.Signal)
	NotifyEntry(pos *model.Position)
	NotifyExit(pos *model.Position)
	NotifyError(scope string, err error)
	NotifyStatus(message string)
}

// NullNotifier drops everything. Used when no sink is configured.
type NullNotifier struct{}

func (NullNotifier) NotifySignal(*model.Signal) {}

func (NullNotifier) NotifyEntry(*model.Position) {}

func (NullNotifier) NotifyExit(*model.Position) {}

func (NullNotifier) NotifyError(string, error) {}

func (NullNotifier) NotifyStatus(string) {}
