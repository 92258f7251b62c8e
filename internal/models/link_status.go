package models

// LinkStatus is the verification outcome recorded for an image URL.
// Pending is the only non-terminal value; every other status is final
// for the attempt that produced it.
type LinkStatus string

const (
	LinkStatusOK             LinkStatus = "ok"
	LinkStatusNotFound       LinkStatus = "not_found"
	LinkStatusForbidden      LinkStatus = "forbidden"
	LinkStatusTimeout        LinkStatus = "timeout"
	LinkStatusInvalidMime    LinkStatus = "invalid_mime"
	LinkStatusDecodeError    LinkStatus = "decode_error"
	LinkStatusExpiredPresign LinkStatus = "expired_presign"
	LinkStatusNetworkError   LinkStatus = "network_error"
	LinkStatusPending        LinkStatus = "pending"
)

// IsTerminal reports whether the status is a final verification outcome.
func (s LinkStatus) IsTerminal() bool {
	return s != LinkStatusPending
}

// Valid reports whether s is a known status value.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusOK, LinkStatusNotFound, LinkStatusForbidden,
		LinkStatusTimeout, LinkStatusInvalidMime, LinkStatusDecodeError,
		LinkStatusExpiredPresign, LinkStatusNetworkError, LinkStatusPending:
		return true
	}
	return false
}
