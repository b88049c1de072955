// Package history 把批处理结果（摘要、逐 run 结果、矩阵）持久化到 sqlite，供事后对比查询。
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/John-Robertt/aprcmp/internal/confusion"
	"github.com/John-Robertt/aprcmp/internal/domain"
)

//go:embed schema.sql
var schema string

var (
	ErrNotFound  = errors.New("批次不存在")
	ErrAmbiguous = errors.New("批次 id 前缀不唯一")
)

// Store 是历史记录存储。
type Store struct {
	db *sql.DB
}

// Entry 是列表视图中的一行。
type Entry struct {
	ID         string
	Manifest   string
	Subsample  int
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    domain.BatchSummary
}

// Batch 是完整还原的一次批处理。
type Batch struct {
	Report domain.BatchReport
	Matrix *confusion.Matrix
}

// New 打开（必要时创建）path 处的数据库并初始化 schema。
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败：%w", err)
	}
	// 单进程 CLI；避免多连接下 ":memory:" 各自独立。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用外键失败：%w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 schema 失败：%w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch 在一个事务里写入批次与其全部 run；rr.ID 为空时分配新 uuid。返回批次 id。
func (s *Store) SaveBatch(ctx context.Context, rr domain.BatchReport, m *confusion.Matrix) (string, error) {
	if m == nil {
		m = confusion.New()
	}
	id := rr.ID
	if id == "" {
		id = uuid.NewString()
	}
	matrixJSON, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("序列化矩阵失败：%w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("开始事务失败：%w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := rr.Summary
	_, err = tx.ExecContext(ctx, `INSERT INTO batches
		(id, manifest, base_dir, subsample, report_path, report_mode, started_at, finished_at,
		 runs, processed, skipped, failed, warnings, compared, agreement, matrix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rr.Manifest, rr.BaseDir, rr.Subsample, rr.ReportPath, rr.ReportMode,
		formatTime(rr.StartedAt), formatTime(rr.FinishedAt),
		sum.Runs, sum.Processed, sum.Skipped, sum.Failed, sum.Warnings, sum.Compared, sum.Agreement,
		string(matrixJSON),
	)
	if err != nil {
		return "", fmt.Errorf("写入批次失败：%w", err)
	}

	for i, it := range rr.Items {
		warnings := it.Warnings
		if warnings == nil {
			warnings = []domain.Warning{}
		}
		wj, err := json.Marshal(warnings)
		if err != nil {
			return "", fmt.Errorf("序列化告警失败：%w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO runs
			(batch_id, seq, run, status, error_code, error_msg, candidate, reference,
			 candidate_len, reference_len, compared, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, it.Run, it.Status, it.ErrorCode, it.ErrorMsg, it.CandidatePath, it.ReferencePath,
			it.CandidateLen, it.ReferenceLen, it.Compared, string(wj),
		)
		if err != nil {
			return "", fmt.Errorf("写入 run %q 失败：%w", it.Run, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("提交事务失败：%w", err)
	}
	return id, nil
}

// ListBatches 按开始时间倒序返回最近 limit 个批次；limit<=0 表示不限制。
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, manifest, subsample, started_at, finished_at,
		runs, processed, skipped, failed, warnings, compared, agreement
		FROM batches ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询批次失败：%w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.Manifest, &e.Subsample, &started, &finished,
			&e.Summary.Runs, &e.Summary.Processed, &e.Summary.Skipped, &e.Summary.Failed,
			&e.Summary.Warnings, &e.Summary.Compared, &e.Summary.Agreement); err != nil {
			return nil, fmt.Errorf("读取批次失败：%w", err)
		}
		if e.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if e.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetBatch 按完整 id 或唯一前缀还原批次。
func (s *Store) GetBatch(ctx context.Context, idOrPrefix string) (Batch, error) {
	id, err := s.resolveID(ctx, idOrPrefix)
	if err != nil {
		return Batch{}, err
	}

	var (
		rr                Batch
		started, finished string
		matrixJSON        string
	)
	rep := &rr.Report
	err = s.db.QueryRowContext(ctx, `SELECT id, manifest, base_dir, subsample, report_path, report_mode,
		started_at, finished_at, agreement, matrix FROM batches WHERE id = ?`, id).
		Scan(&rep.ID, &rep.Manifest, &rep.BaseDir, &rep.Subsample, &rep.ReportPath, &rep.ReportMode,
			&started, &finished, &rep.Summary.Agreement, &matrixJSON)
	if err != nil {
		return Batch{}, fmt.Errorf("读取批次 %s 失败：%w", id, err)
	}
	if rep.StartedAt, err = parseTime(started); err != nil {
		return Batch{}, err
	}
	if rep.FinishedAt, err = parseTime(finished); err != nil {
		return Batch{}, err
	}

	m := &confusion.Matrix{}
	if err := json.Unmarshal([]byte(matrixJSON), m); err != nil {
		return Batch{}, fmt.Errorf("解析矩阵失败：%w", err)
	}
	rr.Matrix = m

	rows, err := s.db.QueryContext(ctx, `SELECT run, status, error_code, error_msg, candidate, reference,
		candidate_len, reference_len, compared, warnings FROM runs WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		return Batch{}, fmt.Errorf("查询 run 失败：%w", err)
	}
	defer rows.Close()

	rep.Items = []domain.RunResult{}
	for rows.Next() {
		var (
			it domain.RunResult
			wj string
		)
		if err := rows.Scan(&it.Run, &it.Status, &it.ErrorCode, &it.ErrorMsg, &it.CandidatePath, &it.ReferencePath,
			&it.CandidateLen, &it.ReferenceLen, &it.Compared, &wj); err != nil {
			return Batch{}, fmt.Errorf("读取 run 失败：%w", err)
		}
		if err := json.Unmarshal([]byte(wj), &it.Warnings); err != nil {
			return Batch{}, fmt.Errorf("解析告警失败：%w", err)
		}
		rep.Items = append(rep.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Batch{}, err
	}

	// summary 由 items 重新计算，保证与落库前一致。
	rep.Finalize()
	return rr, nil
}

func (s *Store) resolveID(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM batches WHERE substr(id, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("查询批次失败：%w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w：%s", ErrNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w：%s", ErrAmbiguous, prefix)
	}
}

// 时间以定宽 UTC 文本存储：字典序即时间序，且不依赖驱动的时间类型映射。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析时间 %q 失败：%w", s, err)
	}
	return t, nil
}
