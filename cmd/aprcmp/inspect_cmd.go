package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/aprcmp/internal/classlist"
	"github.com/John-Robertt/aprcmp/internal/markup"
	"github.com/John-Robertt/aprcmp/internal/vocab"
)

// inspection 是单个分类文件的诊断结果。
type inspection struct {
	Path       string          `json:"path"`
	Patches    int             `json:"patches"`
	Subsamples []subsampleStat `json:"subsamples"`
	Sections   int             `json:"census_sections"`
	Tags       map[string]int  `json:"census_tags"`
}

type subsampleStat struct {
	Number       int            `json:"number"`
	Patches      int            `json:"patches"`
	CatchAll     int            `json:"catch_all"` // 记为 NONE 或不在词表中的标签
	Unterminated bool           `json:"unterminated"`
	Labels       map[string]int `json:"labels"`
}

func newInspectCmd(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "诊断分类文件：每个 subsample 的 patch 数、未终止标记与标记普查",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			out := make([]inspection, 0, len(args))
			failed := 0
			for _, path := range args {
				in, err := inspectFile(path)
				if err != nil {
					failed++
					o.logger.Error("无法诊断文件", zap.String("path", path), zap.Error(err))
					continue
				}
				out = append(out, in)
			}

			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(out)
			} else {
				for _, in := range out {
					writeInspection(stdout, in)
				}
			}

			if failed > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d 个文件无法诊断", failed)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

func inspectFile(path string) (inspection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return inspection{}, err
	}
	l, err := classlist.Parse(bytes.NewReader(b))
	if err != nil {
		return inspection{}, err
	}
	c, err := markup.TakeBytes(b)
	if err != nil {
		return inspection{}, err
	}

	unterminated := make(map[int]bool, len(l.Unterminated))
	for _, n := range l.Unterminated {
		unterminated[n] = true
	}

	in := inspection{
		Path:       path,
		Patches:    l.PatchCount(),
		Subsamples: make([]subsampleStat, 0, l.Len()),
		Sections:   c.Sections,
		Tags:       c.Tags,
	}
	for i, recs := range l.Subsamples {
		st := subsampleStat{
			Number:       i + 1,
			Patches:      len(recs),
			Unterminated: unterminated[i+1],
			Labels:       map[string]int{},
		}
		for _, r := range recs {
			st.Labels[r.Classification]++
			if vocab.IndexOf(r.Classification) == vocab.CatchAll {
				st.CatchAll++
			}
		}
		in.Subsamples = append(in.Subsamples, st)
	}
	return in, nil
}

func writeInspection(w io.Writer, in inspection) {
	fmt.Fprintf(w, "%s: subsamples=%d patches=%d census_sections=%d\n",
		in.Path, len(in.Subsamples), in.Patches, in.Sections)
	for _, st := range in.Subsamples {
		note := ""
		if st.Unterminated {
			note = " unterminated"
		}
		fmt.Fprintf(w, "  #%d patches=%d catch_all=%d%s  %s\n",
			st.Number, st.Patches, st.CatchAll, note, formatCounts(st.Labels))
	}
	if in.Sections > len(in.Subsamples) {
		fmt.Fprintf(w, "  ! 标记中有 %d 个 CLASS 段，解析只得到 %d 个 subsample\n", in.Sections, len(in.Subsamples))
	}
	fmt.Fprintf(w, "  tags: %s\n", formatCounts(in.Tags))
}

// formatCounts 按数量降序、名称升序输出 "name=n"。
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
