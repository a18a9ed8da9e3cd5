package tensor

import "sync/atomic"

// grad recording is on unless something (autograd.NoGrad) switched it off.
var gradDisabled atomic.Bool

// SetGradEnabled toggles graph recording for every op in this package.
func SetGradEnabled(enabled bool) {
	gradDisabled.Store(!enabled)
}

func IsGradEnabled() bool {
	return !gradDisabled.Load()
}
