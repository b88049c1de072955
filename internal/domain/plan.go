package domain

// RunPlan 是 manifest 中一个 run 的输入文件规划（只描述路径，不做 IO）。
type RunPlan struct {
	Run           string
	CandidatePath string // {baseDir}{run}.pcl
	ReferencePath string // {baseDir}{run}.acl
}
