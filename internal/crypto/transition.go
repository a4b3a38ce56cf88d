package crypto

// TransitionKind names the three encryption-setting changes that require
// triggering a clean slate.
type TransitionKind string

const (
	TransitionEnable         TransitionKind = "enable"
	TransitionDisable        TransitionKind = "disable"
	TransitionChangePassword TransitionKind = "change_password"
)

// Transition describes one encryption-setting change the caller must react
// to by wiping server state and re-uploading a fresh snapshot. Toggling
// encryption performs a clean slate.
type Transition struct {
	Kind        TransitionKind
	OldPassword string // empty for TransitionEnable
	NewPassword string // empty for TransitionDisable
}

// DetectTransition compares the previous and next encryption settings and
// reports the Transition to apply, if any. wasEnabled/isEnabled and the
// passwords are read from config.SyncConfig.Encryption before and after a
// settings change lands.
func DetectTransition(wasEnabled, isEnabled bool, oldPassword, newPassword string) (Transition, bool) {
	switch {
	case !wasEnabled && isEnabled:
		return Transition{Kind: TransitionEnable, NewPassword: newPassword}, true
	case wasEnabled && !isEnabled:
		return Transition{Kind: TransitionDisable, OldPassword: oldPassword}, true
	case wasEnabled && isEnabled && oldPassword != newPassword:
		return Transition{Kind: TransitionChangePassword, OldPassword: oldPassword, NewPassword: newPassword}, true
	default:
		return Transition{}, false
	}
}
