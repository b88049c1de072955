package confusion

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/aprcmp/internal/classlist"
	"github.com/John-Robertt/aprcmp/internal/vocab"
)

func mustParse(t *testing.T, s string) classlist.List {
	t.Helper()
	l, err := classlist.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return l
}

func section(labels ...string) string {
	return "<CLASS>" + strings.Join(labels, ",") + "</CLASS>\n"
}

func repeat(label string, k int) []string {
	out := make([]string, k)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestAccumulate_IdenticalSequencesOnlyDiagonal(t *testing.T) {
	const k = 7
	c := mustParse(t, section(repeat("WBC", k)...))
	r := mustParse(t, section(repeat("WBC", k)...))

	m := New()
	tally, err := Accumulate(m, c, r, 1)
	require.NoError(t, err)
	assert.Equal(t, k, tally.Compared)
	assert.False(t, tally.Mismatch())

	w := vocab.IndexOf("WBC")
	for i := 0; i < m.Dim(); i++ {
		for j := 0; j < m.Dim(); j++ {
			want := int64(0)
			if i == w && j == w {
				want = k
			}
			require.Equal(t, want, m.At(i, j), "cell (%d,%d)", i, j)
		}
	}
}

func TestAccumulate_TruncatesToShorter(t *testing.T) {
	c := mustParse(t, section("RBC", "RBC", "WBC", "BACT", "NSE"))
	r := mustParse(t, section("RBC", "DRBC", "WBC"))

	m := New()
	tally, err := Accumulate(m, c, r, 1)
	require.NoError(t, err)
	assert.Equal(t, Tally{Subsample: 1, CandidateLen: 5, ReferenceLen: 3, Compared: 3}, tally)
	assert.True(t, tally.Mismatch())
	assert.Equal(t, int64(3), m.Total())
	assert.Equal(t, int64(1), m.At(vocab.IndexOf("RBC"), vocab.IndexOf("DRBC")))
	assert.Equal(t, int64(2), m.Agreement())
}

func TestAccumulate_SelectsSubsampleAndMapsUnknown(t *testing.T) {
	c := mustParse(t, section("RBC")+section("FOO", "")+"\n")
	r := mustParse(t, section("RBC")+section("NONE", "SQEP"))

	m := New()
	_, err := Accumulate(m, c, r, 2)
	require.NoError(t, err)
	// FOO/NONE 都落入兜底类别。
	assert.Equal(t, int64(1), m.At(vocab.CatchAll, vocab.CatchAll))
	assert.Equal(t, int64(1), m.At(vocab.CatchAll, vocab.IndexOf("SQEP")))
	assert.Equal(t, int64(0), m.At(vocab.IndexOf("RBC"), vocab.IndexOf("RBC")))
}

func TestAccumulate_SubsampleOutOfRangeLeavesMatrix(t *testing.T) {
	c := mustParse(t, section("RBC")+section("RBC"))
	r := mustParse(t, section("RBC"))

	m := New()
	m.Inc(0, 0)
	_, err := Accumulate(m, c, r, 2)
	require.Error(t, err)
	assert.True(t, IsSubsampleRange(err))

	var re *SubsampleRangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.CandidateCount)
	assert.Equal(t, 1, re.ReferenceCount)
	assert.Equal(t, int64(1), m.Total(), "越界时不得修改矩阵")

	_, err = Accumulate(m, c, r, 0)
	assert.True(t, IsSubsampleRange(err))
}

func TestAccumulate_CumulativeAcrossRuns(t *testing.T) {
	runs := []struct{ c, r string }{
		{section("RBC", "WBC"), section("RBC", "WBC", "NSE")},
		{section("BACT", "BACT", "BACT"), section("BACT")},
		{section(), section("SQEP")}, // "<CLASS></CLASS>" => 一个 NONE
	}

	sumMin := 0
	m := New()
	for _, run := range runs {
		tally, err := Accumulate(m, mustParse(t, run.c), mustParse(t, run.r), 1)
		require.NoError(t, err)
		sumMin += tally.Compared
	}
	assert.Equal(t, int64(sumMin), m.Total())
	assert.Equal(t, int64(2+1+1), m.Total())

	// 相同输入在新矩阵上得到完全相同的结果。
	m2 := New()
	for _, run := range runs {
		_, err := Accumulate(m2, mustParse(t, run.c), mustParse(t, run.r), 1)
		require.NoError(t, err)
	}
	assert.True(t, m.Equal(m2))
}

func TestMatrix_JSONAndFromRows(t *testing.T) {
	m := NewSize(2)
	m.Inc(0, 1)
	m.Inc(1, 1)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,1],[0,1]]`, string(b))

	var back Matrix
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, m.Equal(&back))

	_, err = FromRows([][]int64{{1, 2}})
	assert.Error(t, err)
	_, err = FromRows([][]int64{{-1}})
	assert.Error(t, err)
	_, err = FromRows(nil)
	assert.Error(t, err)
}

func TestMatrix_Bounds(t *testing.T) {
	m := New()
	assert.Equal(t, vocab.Size(), m.Dim())
	assert.Equal(t, int64(0), m.At(-1, 0))
	assert.Len(t, m.Row(99), m.Dim())
	assert.Panics(t, func() { m.Inc(m.Dim(), 0) })
}
