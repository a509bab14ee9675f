package oauthsrv

import "time"

// SetNowForTest replaces the clock of s.
func SetNowForTest(s *StateSigner, now func() time.Time) {
	s.now = now
}
