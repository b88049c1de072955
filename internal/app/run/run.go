package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/aprcmp/internal/app/planner"
	"github.com/John-Robertt/aprcmp/internal/config"
	"github.com/John-Robertt/aprcmp/internal/confusion"
	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/history"
	"github.com/John-Robertt/aprcmp/internal/logging"
	"github.com/John-Robertt/aprcmp/internal/manifest"
	"github.com/John-Robertt/aprcmp/internal/metrics"
	"github.com/John-Robertt/aprcmp/internal/report"
)

// Options 是 Execute 的可选依赖；零值可用。
type Options struct {
	Logger   *zap.Logger
	Observer Observer
	// Metrics 为 nil 且配置了 metrics_file 时自动创建。
	Metrics *metrics.Batch
	NewID   func() string
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	o.Logger = logging.OrNop(o.Logger)
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ProcessManifest 处理 manifest 中的全部 run，返回累积的混淆矩阵（不写任何文件）。
// 只有 manifest 不可读时返回 error；单个 run 的问题记录在报告条目中。
func ProcessManifest(manifestPath string, subsample int) (*confusion.Matrix, domain.BatchReport, error) {
	m, rr, _, err := process(context.Background(), manifestPath, subsample, true, Options{}.withDefaults())
	return m, rr, err
}

// Execute 执行一次完整批处理：累积阶段结束后写一次报告，再按配置写历史库与指标文件。
// 该函数尽量把错误“降级”为条目级结果（单个 run 失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, opts Options) (domain.BatchReport, *confusion.Matrix) {
	opts = opts.withDefaults()
	if opts.Metrics == nil && eff.MetricsFile != "" {
		opts.Metrics = metrics.New()
	}
	obs := opts.Observer
	if obs != nil {
		obs.OnStart(eff)
	}
	batchStarted := time.Now()

	m, rr, canceled, err := process(ctx, eff.Manifest, eff.Subsample, eff.Census, opts)
	rr.ReportMode = string(eff.ReportMode)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeManifestUnreadable, err.Error()))
		return finish(ctx, eff, rr, m, opts, batchStarted), m
	}

	if canceled {
		// 有 run 未累积时只有部分结果，不覆盖上一份完整报告。
		opts.Logger.Warn("批处理已取消，不写报告", zap.Error(ctx.Err()))
		return finish(ctx, eff, rr, m, opts, batchStarted), m
	}

	writeStarted := time.Now()
	path, err := report.WriteFile(eff.OutDir, m, eff.ReportMode)
	rr.ReportPath = path
	if err != nil {
		opts.Logger.Error("报告写入失败", zap.String("path", path), zap.Error(err))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeReportWriteFailed, err.Error()))
	} else if obs != nil {
		obs.OnPhaseDone("report", map[string]any{
			"path": path,
			"mode": string(eff.ReportMode),
		}, time.Since(writeStarted))
	}

	return finish(ctx, eff, rr, m, opts, batchStarted), m
}

// finish 收尾：计算 summary，然后按配置写历史库与指标文件（二者失败都记为合成失败条目）。
func finish(ctx context.Context, eff config.EffectiveConfig, rr domain.BatchReport, m *confusion.Matrix, opts Options, batchStarted time.Time) domain.BatchReport {
	rr.Summary.Agreement = m.Agreement()
	rr.FinishedAt = opts.Now()
	rr.Finalize()

	if eff.HistoryDB != "" {
		started := time.Now()
		// 累积阶段结束后批次结果已定，迟到的取消不再丢弃它。
		id, err := saveHistory(context.WithoutCancel(ctx), eff.HistoryDB, rr, m)
		if err != nil {
			opts.Logger.Error("历史记录写入失败", zap.String("path", eff.HistoryDB), zap.Error(err))
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeHistoryWriteFailed, err.Error()))
			rr.Finalize()
		} else {
			rr.HistoryID = id
			if opts.Observer != nil {
				opts.Observer.OnPhaseDone("history", map[string]any{"id": id}, time.Since(started))
			}
		}
	}

	if eff.MetricsFile != "" {
		started := time.Now()
		opts.Metrics.Finish(time.Since(batchStarted), m.Agreement(), m.Total(), rr.FinishedAt)
		if err := opts.Metrics.WriteTextfile(eff.MetricsFile); err != nil {
			opts.Logger.Error("指标文件写入失败", zap.String("path", eff.MetricsFile), zap.Error(err))
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeMetricsWriteFailed, err.Error()))
			rr.Finalize()
		} else if opts.Observer != nil {
			opts.Observer.OnPhaseDone("metrics", map[string]any{"path": eff.MetricsFile}, time.Since(started))
		}
	}
	return rr
}

func saveHistory(ctx context.Context, path string, rr domain.BatchReport, m *confusion.Matrix) (string, error) {
	store, err := history.New(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = store.Close() }()
	return store.SaveBatch(ctx, rr, m)
}

// process 是累积阶段：逐个 run 顺序处理，矩阵在整个 manifest 上累积。
// canceled 只在确有 run 因取消未处理时为 true；manifest 已处理完后才到达的取消不算。
func process(ctx context.Context, manifestPath string, subsample int, census bool, opts Options) (m *confusion.Matrix, rr domain.BatchReport, canceled bool, err error) {
	m = confusion.New()
	rr = domain.BatchReport{
		ID:        opts.NewID(),
		Manifest:  manifestPath,
		Subsample: subsample,
		StartedAt: opts.Now(),
		Items:     make([]domain.RunResult, 0, 64),
	}

	loadStarted := time.Now()
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		opts.Logger.Error("manifest 不可读", zap.String("path", manifestPath), zap.Error(err))
		rr.FinishedAt = opts.Now()
		rr.Finalize()
		return m, rr, false, err
	}
	rr.BaseDir = mf.BaseDir
	plans := planner.PlanManifest(mf)
	if opts.Observer != nil {
		opts.Observer.OnPhaseDone("manifest", map[string]any{
			"base_dir": mf.BaseDir,
			"runs":     len(plans),
		}, time.Since(loadStarted))
	}

	accStarted := time.Now()
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			for _, rest := range plans[i:] {
				res := newResult(rest)
				res.Status = domain.StatusSkipped
				res.ErrorCode = domain.ErrCodeCanceled
				res.ErrorMsg = err.Error()
				rr.Items = append(rr.Items, res)
				opts.Metrics.ObserveRun(res.Status)
			}
			opts.Logger.Warn("批处理被取消", zap.Int("remaining", len(plans)-i), zap.Error(err))
			canceled = true
			break
		}

		oneStarted := time.Now()
		res := processRun(p, m, subsample, census, opts.Logger.With(zap.String("run", p.Run)))
		rr.Items = append(rr.Items, res)

		opts.Metrics.ObserveRun(res.Status)
		opts.Metrics.AddCompared(res.Compared)
		for _, w := range res.Warnings {
			opts.Metrics.ObserveWarning(w.Code)
		}
		if opts.Observer != nil {
			opts.Observer.OnRunDone(i+1, len(plans), res, time.Since(oneStarted))
		}
	}
	if opts.Observer != nil {
		opts.Observer.OnPhaseDone("accumulate", map[string]any{
			"subsample": subsample,
			"compared":  m.Total(),
			"agreement": m.Agreement(),
		}, time.Since(accStarted))
	}

	rr.Summary.Agreement = m.Agreement()
	rr.FinishedAt = opts.Now()
	rr.Finalize()
	return m, rr, canceled, nil
}

// processRun 处理单个 run；任何失败都只影响该 run。
func processRun(p domain.RunPlan, m *confusion.Matrix, subsample int, census bool, log *zap.Logger) domain.RunResult {
	res := newResult(p)

	cand, err := loadSide(SideCandidate, p.CandidatePath, census, &res, log)
	if err != nil {
		return skip(res, domain.ErrCodeSourceUnreadable, err, log)
	}
	ref, err := loadSide(SideReference, p.ReferencePath, census, &res, log)
	if err != nil {
		return skip(res, domain.ErrCodeSourceUnreadable, err, log)
	}

	tally, err := confusion.Accumulate(m, cand, ref, subsample)
	if err != nil {
		return skip(res, domain.ErrCodeSubsampleOutOfRange, err, log)
	}
	res.CandidateLen = tally.CandidateLen
	res.ReferenceLen = tally.ReferenceLen
	res.Compared = tally.Compared

	if tally.Mismatch() {
		warn(&res, log, domain.WarnLengthMismatch,
			fmt.Sprintf("subsample %d：candidate %d 个 patch，reference %d 个，按较短一侧比较 %d 个",
				subsample, tally.CandidateLen, tally.ReferenceLen, tally.Compared))
	}
	log.Debug("run 已计入矩阵", zap.Int("compared", tally.Compared))
	return res
}

func newResult(p domain.RunPlan) domain.RunResult {
	return domain.RunResult{
		Run:           p.Run,
		Status:        domain.StatusProcessed, // 失败时覆盖
		CandidatePath: p.CandidatePath,
		ReferencePath: p.ReferencePath,
		Warnings:      []domain.Warning{},
	}
}

func skip(res domain.RunResult, code string, err error, log *zap.Logger) domain.RunResult {
	res.Status = domain.StatusSkipped
	res.ErrorCode = code
	res.ErrorMsg = err.Error()
	log.Warn("run 已跳过", zap.String("code", code), zap.Error(err))
	return res
}

func syntheticFailed(code, msg string) domain.RunResult {
	return domain.RunResult{
		Run:       "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Warnings:  []domain.Warning{},
	}
}
