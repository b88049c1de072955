package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/aprcmp/internal/config"
	"github.com/John-Robertt/aprcmp/internal/confusion"
	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/history"
	"github.com/John-Robertt/aprcmp/internal/report"
)

type historyOptions struct {
	dbPath     string
	configPath string
	asJSON     bool
}

func newHistoryCmd(o *rootOptions) *cobra.Command {
	var (
		ho    historyOptions
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "列出历史库中的批次（最新在前）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ho)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListBatches(cmd.Context(), limit)
			if err != nil {
				return &exitError{code: 1, msg: err.Error()}
			}
			if ho.asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			writeEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&ho.dbPath, "history", "", "sqlite 历史库（默认读取配置 history_db）")
	pf.StringVar(&ho.configPath, "config", "", "配置文件路径（默认 ./aprcmp.yaml）")
	pf.BoolVar(&ho.asJSON, "json", false, "以 JSON 输出")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "最多列出的批次数（<=0 不限制）")

	cmd.AddCommand(newHistoryShowCmd(&ho))
	return cmd
}

func newHistoryShowCmd(ho *historyOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "显示某个批次的摘要、未处理的 run 与混淆矩阵（ID 可用唯一前缀）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(*ho)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			b, err := store.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return &exitError{code: 1, msg: err.Error()}
			}
			if ho.asJSON {
				return writeJSON(cmd.OutOrStdout(), struct {
					Report domain.BatchReport `json:"report"`
					Matrix *confusion.Matrix  `json:"matrix"`
				}{b.Report, b.Matrix})
			}
			writeBatch(cmd.OutOrStdout(), b)
			return nil
		},
	}
}

func openHistory(ho historyOptions) (*history.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("读取当前目录失败：%v", err)}
	}
	path, err := config.HistoryPath(cwd, ho.configPath, ho.dbPath)
	if err != nil {
		return nil, &exitError{code: 1, msg: err.Error()}
	}
	if path == "" {
		return nil, errors.New("未指定历史库：使用 --history 或在 aprcmp.yaml 中设置 history_db")
	}
	// 只读查询不应顺手创建一个空库。
	if _, err := os.Stat(path); err != nil {
		return nil, &exitError{code: 1, msg: fmt.Sprintf("历史库不可用 %q：%v", path, err)}
	}
	store, err := history.New(path)
	if err != nil {
		return nil, &exitError{code: 1, msg: err.Error()}
	}
	return store, nil
}

func writeEntries(w io.Writer, entries []history.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSUBSAMPLE\tRUNS\tSKIPPED\tFAILED\tCOMPARED\tAGREEMENT\tMANIFEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			shortID(e.ID), e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Subsample,
			e.Summary.Runs, e.Summary.Skipped, e.Summary.Failed, e.Summary.Compared,
			formatAgreement(e.Summary.Agreement, e.Summary.Compared), e.Manifest,
		)
	}
	_ = tw.Flush()
}

func writeBatch(w io.Writer, b history.Batch) {
	rr := b.Report
	fmt.Fprintf(w, "batch: %s\n", rr.ID)
	fmt.Fprintf(w, "manifest: %s (base_dir=%s)\n", rr.Manifest, rr.BaseDir)
	fmt.Fprintf(w, "subsample: %d\n", rr.Subsample)
	fmt.Fprintf(w, "started: %s  finished: %s\n",
		rr.StartedAt.Local().Format("2006-01-02 15:04:05"), rr.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "report: %s (mode=%s)\n", orOff(rr.ReportPath), rr.ReportMode)
	fmt.Fprintf(w, "summary: runs=%d processed=%d skipped=%d failed=%d warnings=%d compared=%d agreement=%s\n",
		rr.Summary.Runs, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Warnings,
		rr.Summary.Compared, formatAgreement(rr.Summary.Agreement, rr.Summary.Compared))

	if np := rr.NotProcessed(); len(np) > 0 {
		fmt.Fprintln(w, "\n未处理:")
		for _, it := range np {
			key := it.Run
			if key == "" {
				key = "<batch>"
			}
			fmt.Fprintf(w, "  %s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
	}
	if b.Matrix != nil && b.Matrix.Total() > 0 {
		fmt.Fprintln(w)
		_ = report.WriteLabeled(w, b.Matrix, true)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &exitError{code: 1, msg: err.Error()}
	}
	return nil
}
