// Package manifest 读写 run 清单：首行是输入目录，其后每行一个 run 标识。
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmpty 表示清单里连首行（输入目录）都没有。
var ErrEmpty = errors.New("manifest 为空：缺少首行输入目录")

// Manifest 是解析后的 run 清单。
//
// 约束：
// - BaseDir 原样保留（不补路径分隔符），由消费方直接拼接
// - Runs 不含空标识；顺序与文件一致，允许重复（重复即重复处理）
type Manifest struct {
	BaseDir string
	Runs    []string
}

// Read 解析清单。空白行（包括文件末尾换行带来的“空行”）一律跳过，不会产生空标识。
func Read(r io.Reader) (Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Manifest{}, fmt.Errorf("读取 manifest 失败：%w", err)
		}
		return Manifest{}, ErrEmpty
	}

	m := Manifest{
		BaseDir: strings.TrimRight(sc.Text(), "\r"),
		Runs:    make([]string, 0, 64),
	}
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		m.Runs = append(m.Runs, id)
	}
	if err := sc.Err(); err != nil {
		return Manifest{}, fmt.Errorf("读取 manifest 失败：%w", err)
	}
	return m, nil
}

// Load 打开并解析清单文件。
func Load(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Write 输出清单（每行以 '\n' 结束）。
func Write(w io.Writer, m Manifest) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, m.BaseDir); err != nil {
		return err
	}
	for _, id := range m.Runs {
		if _, err := fmt.Fprintln(bw, id); err != nil {
			return err
		}
	}
	return bw.Flush()
}
