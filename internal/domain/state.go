package domain

import "time"

// Toggles are process-wide persisted flags.
type Toggles struct {
	// FirstLaunchSetupPerformed is set once first-launch setup completed.
	FirstLaunchSetupPerformed bool `json:"first_launch_setup_performed"`

	// ForegroundSessionActive is true between a foreground entry and the
	// next transition to the background.
	ForegroundSessionActive bool `json:"foreground_session_active"`

	// LastForceUpdateCheck is the time of the last successful force-update check.
	LastForceUpdateCheck time.Time `json:"last_force_update_check"`
}

// State is the persisted document owned by the orchestration core.
type State struct {
	Toggles   Toggles                          `json:"toggles"`
	Windows   map[WindowKind]OpportunityWindow `json:"windows"`
	UpdatedAt time.Time                        `json:"updated_at"`
}

// Window returns the window of the given kind, or the unset sentinel.
func (s State) Window(kind WindowKind) OpportunityWindow {
	return s.Windows[kind]
}

// WithWindow returns a copy of s with the window of kind replaced.
func (s State) WithWindow(kind WindowKind, w OpportunityWindow) State {
	out := s.Clone()
	out.Windows[kind] = w
	return out
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Windows = make(map[WindowKind]OpportunityWindow, len(s.Windows))
	for k, v := range s.Windows {
		out.Windows[k] = v
	}
	return out
}
