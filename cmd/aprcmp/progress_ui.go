package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/aprcmp/internal/app/run"
	"github.com/John-Robertt/aprcmp/internal/config"
	"github.com/John-Robertt/aprcmp/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的逐行进度输出。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time

	ok   int
	skip int
	fail int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] aprcmp run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  manifest: %s\n", eff.Manifest)
	fmt.Fprintf(p.w, "  subsample: %d\n", eff.Subsample)
	fmt.Fprintf(p.w, "  census: %s\n", onOff(eff.Census))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s (mode=%s)\n", eff.OutDir, eff.ReportMode)
	fmt.Fprintf(p.w, "  history: %s\n", orOff(eff.HistoryDB))
	fmt.Fprintf(p.w, "  metrics: %s\n", orOff(eff.MetricsFile))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "manifest":
		fmt.Fprintf(p.w, "manifest: base_dir=%s runs=%d (%s)\n\n",
			stringField(fields, "base_dir"), intField(fields, "runs"), formatShortDuration(dur),
		)
	case "accumulate":
		fmt.Fprintf(p.w, "\n累积: subsample=%d compared=%d agreement=%d ok=%d skip=%d fail=%d (%s)\n",
			intField(fields, "subsample"), intField(fields, "compared"), intField(fields, "agreement"),
			p.ok, p.skip, p.fail, formatShortDuration(dur),
		)
	case "report":
		fmt.Fprintf(p.w, "报告: %s mode=%s (%s)\n",
			stringField(fields, "path"), stringField(fields, "mode"), formatShortDuration(dur),
		)
	case "history":
		fmt.Fprintf(p.w, "历史: id=%s (%s)\n", stringField(fields, "id"), formatShortDuration(dur))
	case "metrics":
		fmt.Fprintf(p.w, "指标: %s (%s)\n", stringField(fields, "path"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnRunDone(idx, total int, res domain.RunResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK compared=%d%s (%s)\n",
			idx, total, res.Run, res.Compared, formatWarnings(res.Warnings), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s: %s (%s)\n",
			idx, total, res.Run, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.Run, strings.ToUpper(res.Status), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
}

func formatWarnings(ws []domain.Warning) string {
	if len(ws) == 0 {
		return ""
	}
	codes := make([]string, 0, len(ws))
	for _, w := range ws {
		codes = append(codes, w.Code)
	}
	return " warn=" + strings.Join(codes, ",")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orOff(s string) string {
	if strings.TrimSpace(s) == "" {
		return "off"
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
