package planner

import (
	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/manifest"
)

const (
	// CandidateExt 是待评估（自动分类）结果的扩展名。
	CandidateExt = ".pcl"
	// ReferenceExt 是参考（人工标注）结果的扩展名。
	ReferenceExt = ".acl"
)

// PlanRun 生成单个 run 的输入路径（不做任何 IO）。
//
// 约束：路径是 baseDir 与 run 的直接字符串拼接，不插入分隔符。
// manifest 的基础目录需要自带结尾分隔符（例如 "D:/Data/" 或 "/data/"）。
func PlanRun(baseDir, run string) domain.RunPlan {
	return domain.RunPlan{
		Run:           run,
		CandidatePath: baseDir + run + CandidateExt,
		ReferencePath: baseDir + run + ReferenceExt,
	}
}

// PlanManifest 按 manifest 顺序为每个 run 生成计划（重复项保留）。
func PlanManifest(m manifest.Manifest) []domain.RunPlan {
	plans := make([]domain.RunPlan, 0, len(m.Runs))
	for _, run := range m.Runs {
		plans = append(plans, PlanRun(m.BaseDir, run))
	}
	return plans
}
