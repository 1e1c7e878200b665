package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func val(v float64) *float64 {
	return &v
}

func iv(from, until int, truth Truth) Interval {
	return Interval{Start: at(from), End: at(until), Truth: truth}
}

func lessThan(threshold float64) Predicate {
	return func(v float64) bool { return v < threshold }
}

func TestTruthTables(t *testing.T) {
	all := []Truth{True, False, Unknown}

	notCases := map[Truth]Truth{True: False, False: True, Unknown: Unknown}
	for in, want := range notCases {
		assert.Equal(t, want, in.Not(), "not %s", in)
	}

	andTable := map[[2]Truth]Truth{
		{True, True}: True, {True, False}: False, {True, Unknown}: Unknown,
		{False, True}: False, {False, False}: False, {False, Unknown}: False,
		{Unknown, True}: Unknown, {Unknown, False}: False, {Unknown, Unknown}: Unknown,
	}
	orTable := map[[2]Truth]Truth{
		{True, True}: True, {True, False}: True, {True, Unknown}: True,
		{False, True}: True, {False, False}: False, {False, Unknown}: Unknown,
		{Unknown, True}: True, {Unknown, False}: Unknown, {Unknown, Unknown}: Unknown,
	}

	for _, a := range all {
		for _, b := range all {
			assert.Equal(t, andTable[[2]Truth{a, b}], And(a, b), "%s and %s", a, b)
			assert.Equal(t, orTable[[2]Truth{a, b}], Or(a, b), "%s or %s", a, b)
		}
	}
}

func TestTruthText(t *testing.T) {
	for _, tr := range []Truth{True, False, Unknown} {
		b, err := tr.MarshalText()
		require.NoError(t, err)

		var back Truth
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, tr, back)
	}

	var tr Truth
	assert.Error(t, tr.UnmarshalText([]byte("maybe")))
}

func TestPack_EndToEndExample(t *testing.T) {
	samples := []Sample{
		{Time: at(0), Value: val(5)},
		{Time: at(10), Value: val(1)},
		{Time: at(40), Value: nil},
	}

	seq, err := Pack(samples, lessThan(3), 20*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, Sequence{
		iv(0, 10, False),
		iv(10, 30, True),
		iv(40, 60, Unknown),
	}, seq)
	require.NoError(t, seq.Validate())
}

func TestPack_SingleSample(t *testing.T) {
	tests := []struct {
		name  string
		value *float64
		want  Truth
	}{
		{"true", val(1), True},
		{"false", val(7), False},
		{"absent", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := Pack([]Sample{{Time: at(5), Value: tt.value}}, lessThan(3), 30*time.Minute)
			require.NoError(t, err)
			require.Len(t, seq, 1)
			assert.Equal(t, iv(5, 35, tt.want), seq[0])
		})
	}
}

func TestPack_Empty(t *testing.T) {
	seq, err := Pack(nil, lessThan(3), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, seq)
}

func TestPack_MergesEqualTruth(t *testing.T) {
	samples := []Sample{
		{Time: at(0), Value: val(1)},
		{Time: at(5), Value: val(2)},
		{Time: at(10), Value: val(9)},
		{Time: at(15), Value: val(8)},
		{Time: at(20), Value: nil},
		{Time: at(25), Value: nil},
	}

	seq, err := Pack(samples, lessThan(3), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Sequence{
		iv(0, 10, True),
		iv(10, 20, False),
		iv(20, 35, Unknown),
	}, seq)
}

func TestPack_AllAbsentYieldsSingleUnknown(t *testing.T) {
	samples := []Sample{{Time: at(0)}, {Time: at(10)}, {Time: at(20)}}

	seq, err := Pack(samples, lessThan(3), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Sequence{iv(0, 50, Unknown)}, seq)
}

func TestPack_GapTruncation(t *testing.T) {
	samples := []Sample{
		{Time: at(0), Value: val(1)},
		{Time: at(100), Value: val(1)},
	}

	seq, err := Pack(samples, lessThan(3), 30*time.Minute)
	require.NoError(t, err)

	// same truth on both sides of the gap must not be merged across it
	assert.Equal(t, Sequence{iv(0, 30, True), iv(100, 130, True)}, seq)
	require.NoError(t, seq.Validate())
}

func TestPack_Idempotent(t *testing.T) {
	samples := []Sample{
		{Time: at(0), Value: val(5)},
		{Time: at(3), Value: nil},
		{Time: at(50), Value: val(2)},
		{Time: at(52), Value: val(2.5)},
	}

	first, err := Pack(samples, lessThan(3), 15*time.Minute)
	require.NoError(t, err)
	second, err := Pack(samples, lessThan(3), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPack_RejectsBadInput(t *testing.T) {
	_, err := Pack([]Sample{{Time: at(1)}, {Time: at(1)}}, lessThan(3), time.Minute)
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = Pack([]Sample{{Time: at(2)}, {Time: at(1)}}, lessThan(3), time.Minute)
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = Pack([]Sample{{Time: at(1)}}, lessThan(3), 0)
	assert.ErrorIs(t, err, ErrInvalidGap)
}

func TestCombine_CompositionExample(t *testing.T) {
	a := Sequence{iv(0, 30, True)}
	b := Sequence{iv(15, 45, False)}

	got, err := Combine(OpAnd, a, b)
	require.NoError(t, err)

	// [15,30) and [30,45) are both false and collapse into one interval
	assert.Equal(t, Sequence{iv(0, 15, Unknown), iv(15, 45, False)}, got)
	require.NoError(t, got.Validate())
}

func TestCombine_Or(t *testing.T) {
	a := Sequence{iv(0, 30, True)}
	b := Sequence{iv(15, 45, False)}

	got, err := Combine(OpOr, a, b)
	require.NoError(t, err)
	assert.Equal(t, Sequence{iv(0, 30, True), iv(30, 45, Unknown)}, got)
}

func TestCombine_GapInAllOperandsStaysUncovered(t *testing.T) {
	a := Sequence{iv(0, 10, True), iv(20, 30, True)}
	b := Sequence{iv(0, 10, True), iv(25, 30, False)}

	got, err := Combine(OpAnd, a, b)
	require.NoError(t, err)
	assert.Equal(t, Sequence{iv(0, 10, True), iv(20, 25, Unknown), iv(25, 30, False)}, got)
}

func TestCombine_RefinesBoundaries(t *testing.T) {
	a := Sequence{iv(0, 10, True), iv(10, 20, False), iv(20, 40, True)}
	b := Sequence{iv(5, 25, True), iv(25, 40, False)}
	c := Sequence{iv(0, 40, True)}

	got, err := Combine(OpAnd, a, b, c)
	require.NoError(t, err)
	assert.Equal(t, Sequence{
		iv(0, 5, Unknown),
		iv(5, 10, True),
		iv(10, 20, False),
		iv(20, 25, True),
		iv(25, 40, False),
	}, got)
	require.NoError(t, got.Validate())
}

func TestCombine_Errors(t *testing.T) {
	_, err := Combine(OpAnd)
	assert.ErrorIs(t, err, ErrNoOperands)

	_, err = Combine(Op(9), Sequence{}, Sequence{})
	assert.Error(t, err)

	single := Sequence{iv(0, 1, True)}
	got, err := Combine(OpOr, single)
	require.NoError(t, err)
	assert.Equal(t, single, got)
}

func TestNot(t *testing.T) {
	seq := Sequence{iv(0, 10, True), iv(10, 20, Unknown), iv(30, 40, False)}
	assert.Equal(t, Sequence{iv(0, 10, False), iv(10, 20, Unknown), iv(30, 40, True)}, Not(seq))
}

func TestSequence_Clip(t *testing.T) {
	seq := Sequence{iv(-10, 10, True), iv(10, 20, False), iv(50, 70, Unknown)}
	assert.Equal(t, Sequence{iv(0, 10, True), iv(10, 20, False), iv(50, 60, Unknown)}, seq.Clip(at(0), at(60)))
	assert.Empty(t, seq.Clip(at(20), at(50)))
}

func TestSequence_Validate(t *testing.T) {
	assert.NoError(t, Sequence{iv(0, 1, True), iv(1, 2, False), iv(3, 4, False)}.Validate())
	assert.Error(t, Sequence{iv(0, 2, True), iv(1, 3, False)}.Validate())
	assert.Error(t, Sequence{iv(0, 1, True), iv(1, 2, True)}.Validate())
	assert.Error(t, Sequence{iv(2, 1, True)}.Validate())
}

func TestSequence_Summarize(t *testing.T) {
	seq := Sequence{iv(0, 30, True), iv(30, 45, False), iv(60, 75, Unknown)}

	sum := seq.Summarize(at(0), at(100))
	assert.Equal(t, 100*time.Minute, sum.Total)
	assert.Equal(t, 30*time.Minute, sum.True)
	assert.Equal(t, 15*time.Minute, sum.False)
	assert.Equal(t, 15*time.Minute, sum.Unknown)
	assert.Equal(t, 40*time.Minute, sum.NoData)
	assert.InDelta(t, 0.3, sum.TrueShare, 1e-9)
	assert.InDelta(t, 0.4, sum.NoDataShare, 1e-9)

	assert.Equal(t, Summary{}, seq.Summarize(at(10), at(10)))
}
