package publisher

import "time"

// SetNowForTest replaces the clock of s.
func SetNowForTest(s *Service, now func() time.Time) {
	s.now = now
}
