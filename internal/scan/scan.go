package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/aprcmp/internal/app/planner"
	"github.com/John-Robertt/aprcmp/internal/manifest"
)

// Orphan 是只有一侧文件的 run（缺少配对，无法写入 manifest）。
type Orphan struct {
	Run     string
	Present string // 已存在的一侧文件（绝对路径）
	Missing string // 缺失的一侧文件（绝对路径）
}

// Result 是扫描结果。Runs 为 run 标识（相对 root、去掉扩展名），按字典序稳定排序。
type Result struct {
	Root    string
	Runs    []string
	Orphans []Orphan
}

// Manifest 把扫描结果转为 manifest；基础目录为 root 加结尾分隔符，使拼接得到的路径可直接打开。
func (r Result) Manifest() manifest.Manifest {
	base := r.Root
	if !strings.HasSuffix(base, string(filepath.Separator)) {
		base += string(filepath.Separator)
	}
	return manifest.Manifest{BaseDir: base, Runs: append([]string(nil), r.Runs...)}
}

// ScanRuns 递归扫描 root 下的 .pcl/.acl 文件并按 run 配对。
//
// 规则（硬约束）：
// - 扩展名区分大小写，与 planner 拼接出的路径一致
// - excludeDirs 视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
//
// 注意：扫描阶段不读文件内容。
func ScanRuns(root string, excludeDirs []string) (Result, error) {
	root, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return Result{}, err
	}
	excluded := buildExcluded(root, excludeDirs)

	type pair struct{ cand, ref string }
	seen := map[string]*pair{}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(d.Name())
		if ext != planner.CandidateExt && ext != planner.ReferenceExt {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		run := strings.TrimSuffix(rel, ext)

		p := seen[run]
		if p == nil {
			p = &pair{}
			seen[run] = p
		}
		if ext == planner.CandidateExt {
			p.cand = path
		} else {
			p.ref = path
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Root: root, Runs: make([]string, 0, len(seen))}
	for run, p := range seen {
		switch {
		case p.cand != "" && p.ref != "":
			res.Runs = append(res.Runs, run)
		case p.cand != "":
			res.Orphans = append(res.Orphans, Orphan{Run: run, Present: p.cand, Missing: filepath.Join(root, run+planner.ReferenceExt)})
		default:
			res.Orphans = append(res.Orphans, Orphan{Run: run, Present: p.ref, Missing: filepath.Join(root, run+planner.CandidateExt)})
		}
	}

	// 强制稳定输出，避免 map 遍历与文件系统差异带来的不确定性。
	sort.Strings(res.Runs)
	sort.Slice(res.Orphans, func(i, j int) bool { return res.Orphans[i].Run < res.Orphans[j].Run })
	return res, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
