package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
)

var base = time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC)

func iv(from, until int, truth interval.Truth) interval.Interval {
	return interval.Interval{
		Start: base.Add(time.Duration(from) * time.Minute),
		End:   base.Add(time.Duration(until) * time.Minute),
		Truth: truth,
	}
}

func mustNew(t *testing.T, raw string) *Condition {
	t.Helper()
	c, err := New("Site A", "d2", raw, 0)
	require.NoError(t, err)
	return c
}

func TestNew_PrecedenceAndAssociativity(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"s1#a > 1 or s1#b > 1 and s1#c > 1", "d2_1 or d2_2 and d2_3"},
		{"(s1#a > 1 or s1#b > 1) and s1#c > 1", "(d2_1 or d2_2) and d2_3"},
		{"not s1#a > 1 and s1#b > 1", "not d2_1 and d2_2"},
		{"not (s1#a > 1 and s1#b > 1)", "not (d2_1 and d2_2)"},
		{"s1#a > 1 and s1#b > 1 and s1#c > 1", "d2_1 and d2_2 and d2_3"},
		{"s1#a > 1 and (s1#b > 1 and s1#c > 1)", "d2_1 and (d2_2 and d2_3)"},
		{"NOT NOT c1", "not not d2_1"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c := mustNew(t, tt.raw)
			require.True(t, c.Valid(), "%v", c.Report(nil, nil))
			assert.Equal(t, tt.want, c.AliasExpr())
		})
	}
}

func TestNew_TreeShape(t *testing.T) {
	c := mustNew(t, "s1#a > 1 or s1#b > 1 and not s1#c > 1")
	require.True(t, c.Valid())

	root := c.Tree
	require.Equal(t, NodeOr, root.Kind)
	assert.Equal(t, NodeLeaf, root.Left.Kind)
	require.Equal(t, NodeAnd, root.Right.Kind)
	assert.Equal(t, 1, root.Right.Left.Block)
	require.Equal(t, NodeNot, root.Right.Right.Kind)
	assert.Equal(t, 2, root.Right.Right.Left.Block)
}

func TestNew_ReusesIdenticalBlocks(t *testing.T) {
	c := mustNew(t, "(s1122#kitka3_luku >= 0.30  and c1) or (s1122#kitka3_luku >= 0.30 and other_site#c2)")
	require.True(t, c.Valid())

	require.Len(t, c.Blocks, 3)
	assert.Equal(t, "d2_1 and d2_2 or d2_1 and d2_3", c.AliasExpr())
	assert.False(t, c.Primary())
	assert.True(t, c.Secondary())
	assert.Equal(t, []block.Ref{
		{Site: "site_a", Alias: "c1"},
		{Site: "other_site", Alias: "c2"},
	}, c.Dependencies())
}

func TestNew_ReusesBlocksAcrossCase(t *testing.T) {
	c := mustNew(t, "s1122#Kitka3 > 1 and s1122#kitka3 > 1 or S1122#KITKA3 > 1")
	require.True(t, c.Valid(), "%v", c.Report(nil, nil))

	require.Len(t, c.Blocks, 1)
	assert.Equal(t, "d2_1 and d2_1 or d2_1", c.AliasExpr())
}

func TestNew_InTupleIsPartOfBlock(t *testing.T) {
	c := mustNew(t, "s1#tie_1 in (1, 2) and not (s1#tie_2 in(3))")
	require.True(t, c.Valid(), "%v", c.Report(nil, nil))
	require.Len(t, c.Blocks, 2)
	assert.Equal(t, []float64{1, 2}, c.Blocks[0].Threshold.Set)
	assert.Equal(t, []float64{3}, c.Blocks[1].Threshold.Set)
	assert.True(t, c.Primary())
}

func TestNew_ParseErrors(t *testing.T) {
	tests := []string{
		"",
		"(s1#a > 1",
		"s1#a > 1)",
		"s1#a > 1 and",
		"or s1#a > 1",
		"s1#a > 1 and or s1#b > 1",
		"not",
		"s1#a > 1 (s1#b > 1)",
		"()",
		"s1#a in (1, 2",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			c := mustNew(t, raw)
			assert.False(t, c.Valid())
			require.Equal(t, 1, c.Errors.Len())
			assert.Equal(t, evalerr.KindParse, c.Errors.Records()[0].Kind)

			_, err := c.Evaluate(nil)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNew_BlockErrorInvalidatesCondition(t *testing.T) {
	c := mustNew(t, "s1#a > high or c1")
	assert.False(t, c.Valid())
	assert.Zero(t, c.Errors.Len())

	rep := c.Report(nil, nil)
	require.Len(t, rep.Blocks, 2)
	assert.Len(t, rep.Blocks[0].Errors, 1)
	assert.Empty(t, rep.Blocks[1].Errors)
	assert.Equal(t, 1, rep.Count())
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New("1site", "d2", "c1", 0)
	assert.Error(t, err)

	_, err = New("site", "d-2", "c1", 0)
	assert.Error(t, err)
}

func TestBind(t *testing.T) {
	c := mustNew(t, "s1#temp < 0 and s1#missing > 1 and c1")

	c.Bind(func(b block.Block) (int, error) {
		if b.Sensor == "temp" {
			return 7, nil
		}
		return 0, evalerr.New(evalerr.KindInput, "sensor %q not found", b.Sensor)
	})

	assert.Equal(t, 7, c.Blocks[0].SensorID)
	assert.Equal(t, 1, c.BlockErrors(1).Len())
	assert.Zero(t, c.BlockErrors(2).Len())
	assert.False(t, c.Valid())
}

func TestEvaluate(t *testing.T) {
	c := mustNew(t, "s1#a < 3 and not (s1#b < 3 or s1#c < 3)")
	require.True(t, c.Valid())

	a := interval.Sequence{iv(0, 60, interval.True)}
	b := interval.Sequence{iv(0, 20, interval.False), iv(20, 40, interval.True)}
	cc := interval.Sequence{iv(0, 10, interval.False), iv(10, 30, interval.Unknown)}

	got, err := c.Evaluate([]interval.Sequence{a, b, cc})
	require.NoError(t, err)

	// b or c: [0,10) F, [10,20) U, [20,40) T, nothing after 40
	// not:    [0,10) T, [10,20) U, [20,40) F
	// a and:  [0,10) T, [10,20) U, [20,40) F, [40,60) U
	assert.Equal(t, interval.Sequence{
		iv(0, 10, interval.True),
		iv(10, 20, interval.Unknown),
		iv(20, 40, interval.False),
		iv(40, 60, interval.Unknown),
	}, got)
	require.NoError(t, got.Validate())

	_, err = c.Evaluate([]interval.Sequence{a})
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	tokens, err := tokenize("(Ylöjärvi#c3 AND s1#x in ( 1,2 )) oR not c4")
	require.NoError(t, err)

	var kinds []tokenKind
	var texts []string
	for _, tok := range tokens {
		kinds = append(kinds, tok.kind)
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []tokenKind{tokLParen, tokBlock, tokAnd, tokBlock, tokRParen, tokOr, tokNot, tokBlock}, kinds)
	assert.Equal(t, "s1#x in ( 1,2 )", texts[3])
	assert.Equal(t, "Ylöjärvi#c3", texts[1])
}
