package binding

import (
	"testing"
	"testing/quick"
)

func TestValidateKnownTokens(t *testing.T) {
	cases := []struct {
		name       string
		token      string
		registered string
		current    string
		want       Outcome
	}{
		{"unbound token binds", "ABC123", "", "dev-1", NewDevice},
		{"same device", "ABC123", "dev-1", "dev-1", Verified},
		{"other device", "ABC123", "dev-1", "dev-2", DeviceMismatch},
		{"empty token", "", "dev-1", "dev-1", Invalid},
		{"empty token unbound", "", "", "dev-1", Invalid},
		{"unbound with empty current", "ABC123", "", "", NewDevice},
		{"bound with empty current", "ABC123", "dev-1", "", DeviceMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Validate(tc.token, tc.registered, tc.current); got != tc.want {
				t.Fatalf("Validate(%q, %q, %q) = %s, want %s", tc.token, tc.registered, tc.current, got, tc.want)
			}
		})
	}
}

func TestValidateEmptyTokenAlwaysInvalid(t *testing.T) {
	f := func(registered, current string) bool {
		return Validate("", registered, current) == Invalid
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestValidateUnboundAlwaysNewDevice(t *testing.T) {
	f := func(token, current string) bool {
		if token == "" {
			return true
		}
		return Validate(token, "", current) == NewDevice
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestValidateMatchAlwaysVerified(t *testing.T) {
	f := func(token, device string) bool {
		if token == "" || device == "" {
			return true
		}
		return Validate(token, device, device) == Verified
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestValidateDifferentDeviceAlwaysMismatch(t *testing.T) {
	f := func(token, registered, current string) bool {
		if token == "" || registered == "" || registered == current {
			return true
		}
		return Validate(token, registered, current) == DeviceMismatch
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAllowed(t *testing.T) {
	want := map[Outcome]bool{
		Invalid:        false,
		NewDevice:      true,
		Verified:       true,
		DeviceMismatch: false,
	}
	for o, allowed := range want {
		if Allowed(o) != allowed {
			t.Fatalf("Allowed(%s) = %v, want %v", o, !allowed, allowed)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if NewDevice.String() != "new_device" || DeviceMismatch.String() != "device_mismatch" {
		t.Fatalf("unexpected outcome names: %s %s", NewDevice, DeviceMismatch)
	}
	if Outcome(42).String() != "invalid" {
		t.Fatalf("unknown outcome should render as invalid, got %s", Outcome(42))
	}
}
