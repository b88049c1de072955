// Package report 把混淆矩阵序列化为制表符分隔的文本报告。
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/John-Robertt/aprcmp/internal/confusion"
	"github.com/John-Robertt/aprcmp/internal/infra/fsx"
	"github.com/John-Robertt/aprcmp/internal/vocab"
)

// FileName 是输出目录下的报告文件名。
const FileName = "ConfusionMatrix.txt"

// Mode 决定报告文件的写入方式。
type Mode string

const (
	// ModeTruncate：每个批次结束时整体替换（默认）。
	ModeTruncate Mode = "truncate"
	// ModeAppend：每个批次结束时追加一份快照（兼容旧的追加式报告）。
	ModeAppend Mode = "append"
)

// ParseMode 解析 report_mode；空串视为 ModeTruncate。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTruncate:
		return ModeTruncate, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("report_mode 只能是 truncate 或 append，实际是 %q", s)
	}
}

// Write 按行输出矩阵：每个计数后跟一个 '\t'，每行以 '\n' 结束。
func Write(w io.Writer, m *confusion.Matrix) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 16)
	for i := 0; i < m.Dim(); i++ {
		for _, v := range m.Row(i) {
			buf = strconv.AppendInt(buf[:0], v, 10)
			buf = append(buf, '\t')
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode 返回 Write 的字节形式。
func Encode(m *confusion.Matrix) []byte {
	var b bytes.Buffer
	_ = Write(&b, m) // bytes.Buffer 不会返回写错误
	return b.Bytes()
}

// WriteFile 把矩阵写到 <dir>/ConfusionMatrix.txt，返回最终路径。
// 调用方应在整个 manifest 处理完成后只调用一次。
func WriteFile(dir string, m *confusion.Matrix, mode Mode) (string, error) {
	path := filepath.Join(dir, FileName)
	data := Encode(m)

	var err error
	switch mode {
	case ModeAppend:
		err = fsx.AppendFile(dir, FileName, data)
	case ModeTruncate, "":
		err = fsx.WriteFileAtomicReplace(dir, FileName, data)
	default:
		return path, fmt.Errorf("未知 report mode：%q", mode)
	}
	if err != nil {
		return path, fmt.Errorf("写入 %s 失败：%w", path, err)
	}
	return path, nil
}

// WriteLabeled 输出带表头的可读表格：行为 candidate，列为 reference。
// 全零的行与列会被省略（onlyNonZero=true 时），便于终端查看。
func WriteLabeled(w io.Writer, m *confusion.Matrix, onlyNonZero bool) error {
	n := m.Dim()
	keep := make([]bool, n)
	for i := 0; i < n; i++ {
		keep[i] = !onlyNonZero
	}
	if onlyNonZero {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if m.At(i, j) != 0 {
					keep[i] = true
					keep[j] = true
				}
			}
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "cand\\ref")
	for j := 0; j < n; j++ {
		if keep[j] {
			fmt.Fprintf(bw, "\t%s", vocab.Label(j))
		}
	}
	fmt.Fprintln(bw)
	for i := 0; i < n; i++ {
		if !keep[i] {
			continue
		}
		fmt.Fprint(bw, vocab.Label(i))
		for j := 0; j < n; j++ {
			if keep[j] {
				fmt.Fprintf(bw, "\t%d", m.At(i, j))
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
