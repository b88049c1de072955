// Package confusion 维护候选分类（APR）与参考分类（人工）之间的混淆矩阵。
package confusion

import (
	"encoding/json"
	"fmt"

	"github.com/John-Robertt/aprcmp/internal/vocab"
)

// Matrix 是方阵计数表，按 [candidateIndex][referenceIndex] 索引。
//
// 约束：
// - 一个批次只创建一次，计数只增不减（Accumulate 从不清零/重新分配）
// - 非并发安全：批处理是串行的
type Matrix struct {
	n     int
	cells []int64 // row-major，长度 n*n
}

// New 创建维度等于词表大小的零矩阵。
func New() *Matrix { return NewSize(vocab.Size()) }

// NewSize 创建 n×n 零矩阵（n<1 按 1 处理）。
func NewSize(n int) *Matrix {
	if n < 1 {
		n = 1
	}
	return &Matrix{n: n, cells: make([]int64, n*n)}
}

// Dim 返回矩阵维度。
func (m *Matrix) Dim() int { return m.n }

// At 返回 (candidate, reference) 处的计数；越界返回 0。
func (m *Matrix) At(candidate, reference int) int64 {
	if !m.inRange(candidate, reference) {
		return 0
	}
	return m.cells[candidate*m.n+reference]
}

// Inc 把 (candidate, reference) 处的计数加一；越界时 panic（下标来自词表，越界即编程错误）。
func (m *Matrix) Inc(candidate, reference int) {
	if !m.inRange(candidate, reference) {
		panic(fmt.Sprintf("confusion: 下标越界 (%d,%d)，维度 %d", candidate, reference, m.n))
	}
	m.cells[candidate*m.n+reference]++
}

// Row 返回第 i 行的副本。
func (m *Matrix) Row(i int) []int64 {
	out := make([]int64, m.n)
	if i < 0 || i >= m.n {
		return out
	}
	copy(out, m.cells[i*m.n:(i+1)*m.n])
	return out
}

// Total 返回全部计数之和（即参与比较的 patch 对数）。
func (m *Matrix) Total() int64 {
	var t int64
	for _, v := range m.cells {
		t += v
	}
	return t
}

// Agreement 返回对角线之和（候选与参考一致的 patch 对数）。
func (m *Matrix) Agreement() int64 {
	var t int64
	for i := 0; i < m.n; i++ {
		t += m.cells[i*m.n+i]
	}
	return t
}

// Equal 判断两个矩阵维度与计数是否完全一致。
func (m *Matrix) Equal(o *Matrix) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.n != o.n {
		return false
	}
	for i := range m.cells {
		if m.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Rows 返回二维副本（JSON/历史记录使用）。
func (m *Matrix) Rows() [][]int64 {
	out := make([][]int64, m.n)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// FromRows 由二维计数构造矩阵；要求为非空方阵且计数非负。
func FromRows(rows [][]int64) (*Matrix, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("confusion: 矩阵不能为空")
	}
	m := NewSize(n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("confusion: 第 %d 行长度 %d，期望 %d", i, len(row), n)
		}
		for j, v := range row {
			if v < 0 {
				return nil, fmt.Errorf("confusion: (%d,%d) 计数为负：%d", i, j, v)
			}
			m.cells[i*n+j] = v
		}
	}
	return m, nil
}

func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Rows())
}

func (m *Matrix) UnmarshalJSON(b []byte) error {
	var rows [][]int64
	if err := json.Unmarshal(b, &rows); err != nil {
		return err
	}
	x, err := FromRows(rows)
	if err != nil {
		return err
	}
	*m = *x
	return nil
}

func (m *Matrix) inRange(c, r int) bool {
	return c >= 0 && c < m.n && r >= 0 && r < m.n
}
