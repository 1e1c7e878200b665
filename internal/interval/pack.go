package interval

import (
	"fmt"
	"time"
)

// Sample is one sensor reading; a nil Value means the sensor reported no data
type Sample struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

// Predicate decides whether a present sensor value satisfies a comparison
type Predicate func(value float64) bool

// Pack turns an ascending series of samples into a maximally merged interval
// sequence. Each sample stays valid until the next sample, but never longer
// than maxGap; time after that truncation is left uncovered.
func Pack(samples []Sample, pred Predicate, maxGap time.Duration) (Sequence, error) {
	if maxGap <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidGap, maxGap)
	}
	if pred == nil {
		return nil, fmt.Errorf("pack: nil predicate")
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i-1].Time.Before(samples[i].Time) {
			return nil, fmt.Errorf("%w: sample %d at %s follows %s",
				ErrUnordered, i, samples[i].Time.Format(time.RFC3339), samples[i-1].Time.Format(time.RFC3339))
		}
	}

	var seq Sequence
	for i, smp := range samples {
		end := smp.Time.Add(maxGap)
		if i+1 < len(samples) && samples[i+1].Time.Before(end) {
			end = samples[i+1].Time
		}

		truth := Unknown
		if smp.Value != nil {
			truth = FromBool(pred(*smp.Value))
		}

		seq = seq.push(Interval{Start: smp.Time, End: end, Truth: truth})
	}

	return seq, nil
}
