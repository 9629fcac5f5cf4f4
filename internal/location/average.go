package location

import (
	"context"
	"errors"
	"time"
)

const sampleGap = 500 * time.Millisecond

// Average takes n position fixes spaced sampleGap apart and returns their
// mean. Failed fixes are skipped; accuracy is averaged over the fixes that
// reported one. An error is returned only when every fix failed.
func Average(ctx context.Context, s Sampler, n int) (Position, error) {
	if n < 1 {
		n = 1
	}

	var (
		sumLat, sumLon, sumAcc float64
		valid, withAccuracy    int
	)

	for i := 0; i < n; i++ {
		pos, err := s.CurrentPosition(ctx)
		if err == nil {
			sumLat += pos.Latitude
			sumLon += pos.Longitude
			valid++
			if pos.AccuracyM != nil {
				sumAcc += *pos.AccuracyM
				withAccuracy++
			}
		}

		if i < n-1 {
			timer := time.NewTimer(sampleGap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Position{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if valid == 0 {
		return Position{}, errors.New("no valid location samples")
	}

	avg := Position{
		Latitude:  sumLat / float64(valid),
		Longitude: sumLon / float64(valid),
	}
	if withAccuracy > 0 {
		acc := sumAcc / float64(withAccuracy)
		avg.AccuracyM = &acc
	}
	return avg, nil
}
