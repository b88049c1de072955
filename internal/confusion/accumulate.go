package confusion

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/aprcmp/internal/classlist"
	"github.com/John-Robertt/aprcmp/internal/vocab"
)

// Tally 描述一次对齐累加的结果。
type Tally struct {
	Subsample    int
	CandidateLen int
	ReferenceLen int
	Compared     int // min(CandidateLen, ReferenceLen)
}

// Mismatch 表示两侧长度不一致（按较短一侧截断，调用方应给出 warning）。
func (t Tally) Mismatch() bool { return t.CandidateLen != t.ReferenceLen }

// SubsampleRangeError 表示所选 subsample 超出了某一侧的 subsample 数量。
type SubsampleRangeError struct {
	Subsample      int
	CandidateCount int
	ReferenceCount int
}

func (e *SubsampleRangeError) Error() string {
	return fmt.Sprintf("subsample %d 超出范围（candidate 共 %d 个，reference 共 %d 个）",
		e.Subsample, e.CandidateCount, e.ReferenceCount)
}

// IsSubsampleRange 判断 err 是否为 SubsampleRangeError。
func IsSubsampleRange(err error) bool {
	var e *SubsampleRangeError
	return errors.As(err, &e)
}

// Accumulate 取出两侧第 subsample 个（1-based）序列，逐位置对齐后累加到 m。
//
// - 任一侧没有该 subsample：返回 *SubsampleRangeError，m 保持不变
// - 长度不一致：按较短一侧截断（不是错误，见 Tally.Mismatch）
func Accumulate(m *Matrix, candidate, reference classlist.List, subsample int) (Tally, error) {
	c, okC := candidate.Subsample(subsample)
	r, okR := reference.Subsample(subsample)
	if !okC || !okR {
		return Tally{Subsample: subsample}, &SubsampleRangeError{
			Subsample:      subsample,
			CandidateCount: candidate.Len(),
			ReferenceCount: reference.Len(),
		}
	}
	t := AccumulatePatches(m, c, r)
	t.Subsample = subsample
	return t, nil
}

// AccumulatePatches 对两段已选定的序列做对齐累加。
func AccumulatePatches(m *Matrix, candidate, reference []classlist.PatchClassification) Tally {
	n := min(len(candidate), len(reference))
	for i := 0; i < n; i++ {
		m.Inc(vocab.IndexOf(candidate[i].Classification), vocab.IndexOf(reference[i].Classification))
	}
	return Tally{
		CandidateLen: len(candidate),
		ReferenceLen: len(reference),
		Compared:     n,
	}
}
