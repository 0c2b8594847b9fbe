package override

import (
	"context"
	"time"
)

// RunSweeper calls Sweep every interval until ctx is cancelled. Expiry is
// otherwise applied lazily on reads.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warnf("override sweep: %v", err)
				continue
			}
			if n > 0 {
				s.log.Infof("override sweep expired %d override(s)", n)
			}
		}
	}
}
