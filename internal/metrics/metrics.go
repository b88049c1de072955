package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/John-Robertt/aprcmp/internal/domain"
)

const namespace = "aprcmp"

// Batch 汇总一次批处理的指标，结束后写成 node_exporter textfile。
//
// 约束：
// - 每个 Batch 使用独立 Registry，不污染全局 DefaultRegisterer
// - nil *Batch 的所有方法都是 no-op，调用方无需判断是否启用
type Batch struct {
	reg *prometheus.Registry

	runs       *prometheus.CounterVec
	compared   prometheus.Counter
	mismatches prometheus.Counter
	warnings   *prometheus.CounterVec
	duration   prometheus.Gauge
	agreement  prometheus.Gauge
	finished   prometheus.Gauge
}

func New() *Batch {
	b := &Batch{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "按结果状态统计的 run 数。",
		}, []string{"status"}),
		compared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_compared_total",
			Help:      "计入混淆矩阵的 patch 对数。",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "length_mismatch_total",
			Help:      "两侧 patch 数不一致（已截断）的 run 数。",
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "按 code 统计的告警数。",
		}, []string{"code"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "最近一次批处理耗时。",
		}),
		agreement: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agreement_ratio",
			Help:      "最近一次批处理的对角线占比（0..1）。",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_finished_timestamp_seconds",
			Help:      "最近一次批处理结束时间（unix 秒）。",
		}),
	}
	b.reg.MustRegister(b.runs, b.compared, b.mismatches, b.warnings, b.duration, b.agreement, b.finished)
	return b
}

// Registry 暴露底层 Registry（测试与自定义导出用）。
func (b *Batch) Registry() *prometheus.Registry {
	if b == nil {
		return nil
	}
	return b.reg
}

func (b *Batch) ObserveRun(status string) {
	if b == nil {
		return
	}
	b.runs.WithLabelValues(status).Inc()
}

func (b *Batch) AddCompared(n int) {
	if b == nil || n <= 0 {
		return
	}
	b.compared.Add(float64(n))
}

func (b *Batch) ObserveWarning(code string) {
	if b == nil {
		return
	}
	b.warnings.WithLabelValues(code).Inc()
	if code == domain.WarnLengthMismatch {
		b.mismatches.Inc()
	}
}

// Finish 记录批次级别的结果。total 为 0 时 agreement_ratio 记为 0。
func (b *Batch) Finish(d time.Duration, agreement, total int64, at time.Time) {
	if b == nil {
		return
	}
	b.duration.Set(d.Seconds())
	ratio := 0.0
	if total > 0 {
		ratio = float64(agreement) / float64(total)
	}
	b.agreement.Set(ratio)
	b.finished.Set(float64(at.Unix()))
}

// WriteTextfile 原子写出 textfile（prometheus 内部先写临时文件再 rename）。
func (b *Batch) WriteTextfile(path string) error {
	if b == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, b.reg)
}
