package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// error_code：run 被跳过/批次失败的原因。
const (
	ErrCodeSourceUnreadable      = "source_unreadable"
	ErrCodeSubsampleOutOfRange   = "subsample_out_of_range"
	ErrCodeManifestUnreadable    = "manifest_unreadable"
	ErrCodeReportWriteFailed     = "report_write_failed"
	ErrCodeHistoryWriteFailed    = "history_write_failed"
	ErrCodeMetricsWriteFailed    = "metrics_write_failed"
	ErrCodeCanceled              = "canceled"
	ErrCodeConfigNotFound        = "config_not_found"
	ErrCodeConfigInvalid         = "config_invalid"
	ErrCodeConfigMissingManifest = "config_missing_manifest"
)

// warning code：不影响 run 计入矩阵，但需要让用户看见。
const (
	WarnLengthMismatch       = "length_mismatch"
	WarnMalformedMarkup      = "malformed_markup"
	WarnMarkupCensusMismatch = "markup_census_mismatch"
)

// BatchReport 是一次批处理对外稳定输出（stdout JSON / 历史记录）的结构。
type BatchReport struct {
	ID         string `json:"id"`
	Manifest   string `json:"manifest"`
	BaseDir    string `json:"base_dir"`
	Subsample  int    `json:"subsample"`
	ReportPath string `json:"report_path"`
	ReportMode string `json:"report_mode"`
	// HistoryID 非空表示本批次已写入历史库。
	HistoryID string `json:"history_id,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary BatchSummary `json:"summary"`
	Items   []RunResult  `json:"items"`
}

type BatchSummary struct {
	Runs      int   `json:"runs"`
	Processed int   `json:"processed"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	Warnings  int   `json:"warnings"`
	Compared  int64 `json:"compared"`
	Agreement int64 `json:"agreement"`
}

// RunResult 是单个 run（manifest 中的一行）的处理结果。
type RunResult struct {
	Run       string `json:"run"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	CandidatePath string `json:"candidate_path"`
	ReferencePath string `json:"reference_path"`

	CandidateLen int `json:"candidate_len"`
	ReferenceLen int `json:"reference_len"`
	Compared     int `json:"compared"`

	Warnings []Warning `json:"warnings"`
}

type Warning struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 保持 manifest 顺序；run=="" 的合成条目稳定地排到最后
// 3) summary 由 items 计算得出（Agreement 来自矩阵，原样保留）
func (r *BatchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Run != "" && r.Items[j].Run == ""
	})

	s := BatchSummary{Agreement: r.Summary.Agreement}
	for _, it := range r.Items {
		if it.Run != "" {
			s.Runs++
		}
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		s.Warnings += len(it.Warnings)
		s.Compared += int64(it.Compared)
	}
	r.Summary = s
}

// NotProcessed 返回被跳过或失败的条目（用于面向用户的“跳过清单”）。
func (r BatchReport) NotProcessed() []RunResult {
	out := make([]RunResult, 0, r.Summary.Skipped+r.Summary.Failed)
	for _, it := range r.Items {
		if it.Status != StatusProcessed {
			out = append(out, it)
		}
	}
	return out
}

// MarshalJSON 集中约束输出的稳定性；当前只是透传 encoding/json 的默认行为。
func (r BatchReport) MarshalJSON() ([]byte, error) {
	type Alias BatchReport
	return json.Marshal(Alias(r))
}
