// Package classlist 解析 APR/人工分类流（.pcl / .acl），得到按 subsample 分组的 patch 分类序列。
package classlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/John-Robertt/aprcmp/internal/vocab"
)

// startTag 是 subsample 分类列表的起始标记（终止符 '>' 已被切掉）。
const startTag = "<CLASS"

// asciiSpace 与 C 的 isspace 一致。
const asciiSpace = " \t\n\v\f\r"

// PatchClassification 是单个 patch 的分类记录（创建后不可变）。
type PatchClassification struct {
	SubsampleNumber int    `json:"subsample_number"` // 1-based
	PatchIndex      int    `json:"patch_index"`      // 0-based，subsample 内唯一
	Classification  string `json:"classification"`
}

// List 是一次解析得到的分类集合。
//
// 不变量：
// - Subsamples 按解析顺序排列；Subsamples[i] 内 PatchIndex 从 0 连续递增
// - Unterminated 记录扫描到流末尾仍未遇到 '<' 的 subsample 编号（MalformedMarkup，非致命）
type List struct {
	Subsamples   [][]PatchClassification
	Unterminated []int
}

// Len 返回 subsample 数量。
func (l List) Len() int { return len(l.Subsamples) }

// Subsample 按 1-based 位置取出某个 subsample 的记录。
func (l List) Subsample(n int) ([]PatchClassification, bool) {
	if n < 1 || n > len(l.Subsamples) {
		return nil, false
	}
	return l.Subsamples[n-1], true
}

// PatchCount 返回全部 subsample 的记录总数。
func (l List) PatchCount() int {
	n := 0
	for _, s := range l.Subsamples {
		n += len(s)
	}
	return n
}

// Malformed 表示至少一个 subsample 没有正常终止。
func (l List) Malformed() bool { return len(l.Unterminated) > 0 }

// Parse 解析一个完整的分类流；subsample 从 1 开始编号。
func Parse(r io.Reader) (List, error) {
	l, _, err := ParseFrom(r, 0)
	return l, err
}

// ParseFrom 与 Parse 相同，但 subsample 计数器由调用方显式传入：
// last 是上一次已使用的编号，返回值 next 是本次最后分配的编号（未遇到 <CLASS 时等于 last）。
//
// 规则：
// - 以 '>' 切分 token，去掉前导空白后与 "<CLASS" 比较；不匹配则丢弃该行剩余内容
// - 匹配后逐字节读取标签（跳过空白）：',' 与 '<' 结束当前 token，空 token 记为 "NONE"
// - '<' 同时结束整个 subsample；流结束时未终止的 subsample 保留已产出的记录
// - 没有任何 <CLASS 标记不算错误（返回空 List）
func ParseFrom(r io.Reader, last int) (l List, next int, err error) {
	br := bufio.NewReader(r)
	next = last

	for {
		tok, rerr := br.ReadString('>')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return List{}, last, fmt.Errorf("读取分类流失败：%w", rerr)
		}
		eof := rerr != nil
		tok = strings.TrimSuffix(tok, ">")
		if eof && tok == "" {
			break
		}

		if strings.TrimLeft(tok, asciiSpace) == startTag {
			next++
			recs, terminated, serr := scanSubsample(br, next)
			if serr != nil {
				return List{}, last, serr
			}
			l.Subsamples = append(l.Subsamples, recs)
			if !terminated {
				l.Unterminated = append(l.Unterminated, next)
			}
		} else if !eof {
			// 非 <CLASS 标记：丢弃该行剩余内容。
			if _, derr := br.ReadString('\n'); derr != nil && !errors.Is(derr, io.EOF) {
				return List{}, last, fmt.Errorf("读取分类流失败：%w", derr)
			}
		}

		if eof {
			break
		}
	}
	return l, next, nil
}

func scanSubsample(br *bufio.Reader, ssn int) (recs []PatchClassification, terminated bool, err error) {
	recs = make([]PatchClassification, 0, 64)
	var label []byte

	for {
		c, rerr := br.ReadByte()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				// 未终止：只保留已经由分隔符产出的记录。
				return recs, false, nil
			}
			return nil, false, fmt.Errorf("读取 subsample %d 失败：%w", ssn, rerr)
		}
		if strings.IndexByte(asciiSpace, c) >= 0 {
			continue
		}

		switch c {
		case ',', '<':
			cls := string(label)
			if cls == "" {
				cls = vocab.NoneLabel
			}
			recs = append(recs, PatchClassification{
				SubsampleNumber: ssn,
				PatchIndex:      len(recs),
				Classification:  cls,
			})
			label = label[:0]
			if c == '<' {
				return recs, true, nil
			}
		default:
			label = append(label, c)
		}
	}
}

// ParseFile 打开并解析一个分类文件。
func ParseFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return List{}, err
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return List{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
