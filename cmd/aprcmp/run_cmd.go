package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/aprcmp/internal/app/run"
	"github.com/John-Robertt/aprcmp/internal/config"
	"github.com/John-Robertt/aprcmp/internal/confusion"
	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/report"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	var cli config.CLIArgs

	cmd := &cobra.Command{
		Use:   "run [manifest]",
		Short: "处理 manifest 中的全部 run 并写出混淆矩阵",
		Long: `处理 manifest 中的全部 run 并写出 <out>/ConfusionMatrix.txt。

未给出 manifest 时读取 ./aprcmp.yaml 的 manifest 字段。
stdout 是终端时输出摘要与矩阵；否则只输出一个 BatchReport JSON（摘要走 stderr）。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cli.Manifest = args[0]
			}
			f := cmd.Flags()
			cli.SubsampleSet = f.Changed("subsample")
			cli.AppendSet = f.Changed("append")
			cli.NoCensusSet = f.Changed("no-census")
			cli.Verbose = o.verbose
			return runBatch(cmd, o, cli)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cli.ConfigPath, "config", "", "配置文件路径（默认 ./aprcmp.yaml，可选）")
	f.StringVarP(&cli.Out, "out", "o", "", "报告输出目录（默认当前目录）")
	f.IntVarP(&cli.Subsample, "subsample", "s", config.DefaultSubsample, "参与比较的 subsample（1-based）")
	f.BoolVar(&cli.Append, "append", false, "追加写报告（每个批次一份快照）；默认覆盖")
	f.StringVar(&cli.HistoryDB, "history", "", "把本批次写入 sqlite 历史库")
	f.StringVar(&cli.MetricsFile, "metrics", "", "写出 prometheus textfile 指标")
	f.BoolVar(&cli.NoCensus, "no-census", false, "关闭标记普查（CLASS 段计数交叉校验）")
	return cmd
}

func runBatch(cmd *cobra.Command, o *rootOptions, cli config.CLIArgs) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("读取当前目录失败：%v", err)}
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cwd, cli, err), nil)
		return &exitError{code: 1}
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rr, m := run.Execute(ctx, eff, run.Options{Logger: o.logger, Observer: obs})
	emitReport(stdout, stderr, rr, m)

	if rr.Summary.Skipped == 0 && rr.Summary.Failed == 0 {
		return nil
	}
	return &exitError{code: 1}
}

func emitReport(stdout, stderr io.Writer, rr domain.BatchReport, m *confusion.Matrix) {
	summary := fmt.Sprintf("完成：processed=%d skipped=%d failed=%d compared=%d agreement=%s",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		rr.Summary.Compared, formatAgreement(rr.Summary.Agreement, rr.Summary.Compared),
	)

	if isTerminal(stdout) {
		fmt.Fprintln(stdout, summary)
		if m != nil && m.Total() > 0 {
			fmt.Fprintln(stdout)
			_ = report.WriteLabeled(stdout, m, true)
		}
		if rr.ReportPath != "" {
			fmt.Fprintf(stdout, "\nreport: %s\n", rr.ReportPath)
		}
		for _, it := range rr.NotProcessed() {
			key := it.Run
			if key == "" {
				// manifest/config/报告写入等合成条目：没有 run 可以定位。
				key = "<batch>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 BatchReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summary)
}

func formatAgreement(agreement, compared int64) string {
	if compared == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(agreement)/float64(compared))
}

func reportForConfigError(cwd string, cli config.CLIArgs, err error) domain.BatchReport {
	now := time.Now().UTC()
	manifest := cli.Manifest
	if manifest != "" && !filepath.IsAbs(manifest) {
		manifest = filepath.Join(cwd, manifest)
	}
	rr := domain.BatchReport{
		Manifest:   manifest,
		Subsample:  cli.Subsample,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.RunResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Warnings:  []domain.Warning{},
		}},
	}
	rr.Finalize()
	return rr
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTerminal(stderr) {
		return stderr, true
	}
	// 仅重定向 stderr 时 stdout 仍是 TTY：退化输出到 stdout。
	if isTerminal(stdout) {
		return stdout, true
	}
	return nil, false
}
