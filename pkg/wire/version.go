package wire

// MessageVersion reports the service version in which a message was
// introduced. Per-message version data is not tracked, so the result is
// always unknown: ok is false and major and minor are zero.
func MessageVersion(s Service, messageID uint16) (major, minor uint16, ok bool) {
	return 0, 0, false
}
