// Package markup 用宽松的 HTML 解析器对分类流做“标记普查”，作为逐字节扫描器之外的第二视角。
//
// 扫描器只认行首（去掉前导空白后）的 <CLASS>；同一行里紧跟在终止符后的 <CLASS> 会被忽略。
// 普查结果与扫描结果不一致时，上层据此给出 warning，而不是改变解析语义。
package markup

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/PuerkitoBio/goquery"
)

// sectionTag 是 <CLASS> 在 HTML 解析器中的元素名（解析器统一转为小写）。
const sectionTag = "class"

// Census 是一次普查的结果。
type Census struct {
	Sections int            // <CLASS> 元素个数
	Tags     map[string]int // 元素名（小写）-> 个数；不含解析器补出的 html/head/body
}

// Take 对 r 中的内容做普查。
func Take(r io.Reader) (Census, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Census{}, fmt.Errorf("解析标记失败：%w", err)
	}

	c := Census{Tags: map[string]int{}}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch name {
		case "html", "head", "body":
			return
		}
		c.Tags[name]++
	})
	c.Sections = c.Tags[sectionTag]
	return c, nil
}

// TakeBytes 是 Take 的便捷形式。
func TakeBytes(b []byte) (Census, error) {
	return Take(bytes.NewReader(b))
}

// TakeFile 读取并普查一个文件。
func TakeFile(path string) (Census, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Census{}, err
	}
	return TakeBytes(b)
}

// Names 返回出现过的元素名（字典序）。
func (c Census) Names() []string {
	names := make([]string, 0, len(c.Tags))
	for n := range c.Tags {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
