package interval

import (
	"time"
)

// Summary totals how long a sequence was true, false, unknown or not
// covered at all within an analysis range
type Summary struct {
	Total   time.Duration `json:"total"`
	True    time.Duration `json:"true"`
	False   time.Duration `json:"false"`
	Unknown time.Duration `json:"unknown"`
	NoData  time.Duration `json:"no_data"`

	TrueShare    float64 `json:"true_share"`
	FalseShare   float64 `json:"false_share"`
	UnknownShare float64 `json:"unknown_share"`
	NoDataShare  float64 `json:"no_data_share"`
}

// Summarize computes the Summary of s over [from, until)
func (s Sequence) Summarize(from, until time.Time) Summary {
	sum := Summary{Total: until.Sub(from)}
	if sum.Total <= 0 {
		return Summary{}
	}

	for _, iv := range s.Clip(from, until) {
		switch iv.Truth {
		case True:
			sum.True += iv.Duration()
		case False:
			sum.False += iv.Duration()
		case Unknown:
			sum.Unknown += iv.Duration()
		}
	}
	sum.NoData = sum.Total - sum.True - sum.False - sum.Unknown

	total := float64(sum.Total)
	sum.TrueShare = float64(sum.True) / total
	sum.FalseShare = float64(sum.False) / total
	sum.UnknownShare = float64(sum.Unknown) / total
	sum.NoDataShare = float64(sum.NoData) / total

	return sum
}
