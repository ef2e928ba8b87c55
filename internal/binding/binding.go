// Package binding classifies an access token presentation against the
// device the token is bound to.
package binding

// Outcome is the result of checking a token against its registered device.
type Outcome int

const (
	// Invalid means no token was presented.
	Invalid Outcome = iota
	// NewDevice means the token is unbound; the caller must bind it to the
	// current device before granting access.
	NewDevice
	// Verified means the token is bound to the current device.
	Verified
	// DeviceMismatch means the token is bound to a different device.
	DeviceMismatch
)

func (o Outcome) String() string {
	switch o {
	case NewDevice:
		return "new_device"
	case Verified:
		return "verified"
	case DeviceMismatch:
		return "device_mismatch"
	default:
		return "invalid"
	}
}

// Validate decides how a token presented from current relates to the device
// registered against it. It never mutates anything; persisting a NewDevice
// binding is the caller's job.
func Validate(token, registered, current string) Outcome {
	if token == "" {
		return Invalid
	}
	if registered == "" {
		return NewDevice
	}
	if registered == current {
		return Verified
	}
	return DeviceMismatch
}

// Allowed reports whether the outcome grants access.
func Allowed(o Outcome) bool {
	return o == NewDevice || o == Verified
}
