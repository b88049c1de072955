package run

import (
	"time"

	"github.com/John-Robertt/aprcmp/internal/config"
	"github.com/John-Robertt/aprcmp/internal/domain"
)

// Observer 用于把“进度/阶段/逐 run 结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件按顺序在调用 Execute 的 goroutine 上发出
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（manifest / accumulate / report / history / metrics）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnRunDone 在每个 run 处理完成（含跳过）后调用。
	OnRunDone(idx, total int, res domain.RunResult, dur time.Duration)
}
