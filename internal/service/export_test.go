package service

import "time"

// SetNow overrides the dispatch service clock so tests can pin expiry math.
func SetNow(s *DispatchService, now func() time.Time) {
	s.now = now
}
