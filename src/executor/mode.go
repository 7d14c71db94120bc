package executor

import "fmt"

// Mode selects how admitted signals are executed. The set is closed:
// dispatch is an exhaustive switch so adding a mode is a compile-time
// checked change.
type Mode int

const (
	ModeSimulate Mode = iota
	ModeNotifyOnly
	ModeManualConfirm
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeSimulate:
		return "simulate"
	case ModeNotifyOnly:
		return "notify-only"
	case ModeManualConfirm:
		return "manual-confirm"
	case ModeLive:
		return "live"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "simulate", "paper":
		return ModeSimulate, nil
	case "notify-only", "signal":
		return ModeNotifyOnly, nil
	case "manual-confirm", "semi-auto":
		return ModeManualConfirm, nil
	case "live", "auto":
		return ModeLive, nil
	}
	return ModeSimulate, fmt.Errorf("unknown execution mode %q", s)
}
