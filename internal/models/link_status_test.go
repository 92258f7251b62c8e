package models

import "testing"

func TestLinkStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   LinkStatus
		terminal bool
	}{
		{LinkStatusOK, true},
		{LinkStatusNotFound, true},
		{LinkStatusForbidden, true},
		{LinkStatusTimeout, true},
		{LinkStatusInvalidMime, true},
		{LinkStatusDecodeError, true},
		{LinkStatusExpiredPresign, true},
		{LinkStatusNetworkError, true},
		{LinkStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestLinkStatus_Valid(t *testing.T) {
	for _, s := range []LinkStatus{
		LinkStatusOK, LinkStatusNotFound, LinkStatusForbidden,
		LinkStatusTimeout, LinkStatusInvalidMime, LinkStatusDecodeError,
		LinkStatusExpiredPresign, LinkStatusNetworkError, LinkStatusPending,
	} {
		if !s.Valid() {
			t.Errorf("Valid(%s) = false, want true", s)
		}
	}

	if LinkStatus("bogus").Valid() {
		t.Error("Valid(bogus) = true, want false")
	}
	if LinkStatus("").Valid() {
		t.Error("Valid(empty) = true, want false")
	}
}
