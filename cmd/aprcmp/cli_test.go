package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/report"
)

// fixture 在临时目录下准备两个 run 的分类文件与 manifest。
type fixture struct {
	dir      string
	data     string
	manifest string
	out      string
}

func newFixture(t *testing.T, runs ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		data:     filepath.Join(dir, "data"),
		manifest: filepath.Join(dir, "manifest.txt"),
		out:      filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(f.data, 0o755))

	files := map[string][2]string{
		"run01": {"<CLASS>RBC,WBC,BACT<\n", "<CLASS>RBC,WBC,NSE<\n"},
		"run02": {"<CLASS>SQEP,SQEP<\n<CLASS>CAOX<\n", "<CLASS>SQEP,CAOX<\n<CLASS>CAOX<\n"},
	}
	for run, pair := range files {
		require.NoError(t, os.WriteFile(filepath.Join(f.data, run+".pcl"), []byte(pair[0]), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(f.data, run+".acl"), []byte(pair[1]), 0o644))
	}

	var b strings.Builder
	b.WriteString(f.data + string(filepath.Separator) + "\n")
	for _, r := range runs {
		b.WriteString(r + "\n")
	}
	require.NoError(t, os.WriteFile(f.manifest, []byte(b.String()), 0o644))
	return f
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var o, e bytes.Buffer
	code = execute(args, &o, &e)
	return code, o.String(), e.String()
}

func decodeReport(t *testing.T, stdout string) domain.BatchReport {
	t.Helper()
	var rr domain.BatchReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rr), "stdout 不是合法的 BatchReport JSON：%q", stdout)
	return rr
}

func TestCLI_Run_NonTTY_StdoutOnlyJSON(t *testing.T) {
	f := newFixture(t, "run01", "run02")

	code, stdout, stderr := runCLI(t, "run", f.manifest, "--out", f.out)
	require.Equal(t, 0, code, "stderr=%s", stderr)

	rr := decodeReport(t, stdout)
	assert.Equal(t, 2, rr.Summary.Processed)
	assert.Equal(t, int64(5), rr.Summary.Compared)
	assert.Equal(t, filepath.Join(f.out, report.FileName), rr.ReportPath)
	assert.NotEmpty(t, rr.ID)
	assert.NotContains(t, stdout, "配置（生效）")
	assert.Contains(t, stderr, "完成：processed=2")

	_, err := os.Stat(rr.ReportPath)
	assert.NoError(t, err)
}

func TestCLI_Run_SkippedRunExitsOne(t *testing.T) {
	f := newFixture(t, "run01", "missing", "run02")

	code, stdout, stderr := runCLI(t, "run", f.manifest, "--out", f.out)
	require.Equal(t, 1, code, "stderr=%s", stderr)

	rr := decodeReport(t, stdout)
	require.Len(t, rr.Items, 3)
	assert.Equal(t, domain.ErrCodeSourceUnreadable, rr.Items[1].ErrorCode)
	assert.Equal(t, 2, rr.Summary.Processed)
	// 跳过告警走 stderr 日志。
	assert.Contains(t, stderr, "missing")
}

// syncBuffer 记录 logger 的 Sync 调用次数。
type syncBuffer struct {
	bytes.Buffer
	syncs int
}

func (b *syncBuffer) Sync() error {
	b.syncs++
	return nil
}

func TestCLI_Run_ExitOneStillSyncsLogger(t *testing.T) {
	f := newFixture(t, "run01", "missing")

	var stdout bytes.Buffer
	stderr := &syncBuffer{}
	code := execute([]string{"run", f.manifest, "--out", f.out}, &stdout, stderr)

	require.Equal(t, 1, code, "stderr=%s", stderr.String())
	assert.Contains(t, stderr.String(), "missing")
	assert.GreaterOrEqual(t, stderr.syncs, 1, "退出码 1 的路径也必须 Sync 日志")
}

func TestCLI_Run_SubsampleFlag(t *testing.T) {
	f := newFixture(t, "run01", "run02")

	code, stdout, _ := runCLI(t, "run", f.manifest, "--out", f.out, "-s", "2")
	require.Equal(t, 1, code)

	rr := decodeReport(t, stdout)
	assert.Equal(t, 2, rr.Subsample)
	assert.Equal(t, domain.ErrCodeSubsampleOutOfRange, rr.Items[0].ErrorCode)
	assert.Equal(t, domain.StatusProcessed, rr.Items[1].Status)
	assert.Equal(t, int64(1), rr.Summary.Compared)
}

func TestCLI_Run_ConfigNotFound(t *testing.T) {
	// 包目录下没有 aprcmp.yaml，且未给出 manifest。
	code, stdout, _ := runCLI(t, "run", "--out", t.TempDir())
	require.Equal(t, 1, code)

	rr := decodeReport(t, stdout)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeConfigNotFound, rr.Items[0].ErrorCode)
}

func TestCLI_ArgErrorsExitTwo(t *testing.T) {
	cases := [][]string{
		{"run", "a.txt", "b.txt"},
		{"run", "--subsample", "x"},
		{"run", "--nope"},
		{"bogus"},
		{"inspect"},
		{"manifest"},
	}
	for _, args := range cases {
		code, _, stderr := runCLI(t, args...)
		assert.Equal(t, 2, code, "args=%v stderr=%s", args, stderr)
	}
}

func TestCLI_HistoryRoundTrip(t *testing.T) {
	f := newFixture(t, "run01", "run02")
	db := filepath.Join(f.dir, "history.db")

	code, stdout, stderr := runCLI(t, "run", f.manifest, "--out", f.out, "--history", db)
	require.Equal(t, 0, code, "stderr=%s", stderr)
	rr := decodeReport(t, stdout)
	require.Equal(t, rr.ID, rr.HistoryID)

	code, stdout, stderr = runCLI(t, "history", "--history", db)
	require.Equal(t, 0, code, "stderr=%s", stderr)
	assert.Contains(t, stdout, rr.ID[:8])
	assert.Contains(t, stdout, "60.0%")

	code, stdout, stderr = runCLI(t, "history", "show", rr.ID[:8], "--history", db)
	require.Equal(t, 0, code, "stderr=%s", stderr)
	assert.Contains(t, stdout, "batch: "+rr.ID)
	assert.Contains(t, stdout, "compared=5")
	assert.Contains(t, stdout, "cand\\ref")

	code, _, _ = runCLI(t, "history", "show", "ffffffff", "--history", db)
	assert.Equal(t, 1, code)
}

func TestCLI_History_MissingDB(t *testing.T) {
	code, _, _ := runCLI(t, "history", "--history", filepath.Join(t.TempDir(), "none.db"))
	assert.Equal(t, 1, code)

	code, _, _ = runCLI(t, "history")
	assert.Equal(t, 2, code)
}

func TestCLI_Manifest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.data, "orphan.pcl"), []byte("<CLASS>RBC<\n"), 0o644))

	code, stdout, stderr := runCLI(t, "manifest", f.data)
	require.Equal(t, 0, code, "stderr=%s", stderr)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Equal(t, []string{f.data + string(filepath.Separator), "run01", "run02"}, lines)
	assert.Contains(t, stderr, "orphan")

	// 生成的 manifest 可直接用于 run。
	out := filepath.Join(f.dir, "generated.txt")
	code, _, _ = runCLI(t, "manifest", f.data, "-o", out)
	require.Equal(t, 0, code)
	code, stdout, _ = runCLI(t, "run", out, "--out", f.out)
	require.Equal(t, 0, code)
	assert.Equal(t, 2, decodeReport(t, stdout).Summary.Processed)
}

func TestCLI_Inspect(t *testing.T) {
	f := newFixture(t)
	bad := filepath.Join(f.data, "bad.pcl")
	require.NoError(t, os.WriteFile(bad, []byte("<CLASS>RBC<CLASS>WBC<\n<CLASS>NSE,,FOO"), 0o644))

	code, stdout, stderr := runCLI(t, "inspect", filepath.Join(f.data, "run02.pcl"), bad)
	require.Equal(t, 0, code, "stderr=%s", stderr)

	assert.Contains(t, stdout, "run02.pcl: subsamples=2 patches=3 census_sections=2")
	assert.Contains(t, stdout, "bad.pcl: subsamples=2 patches=3 census_sections=3")
	assert.Contains(t, stdout, "#2 patches=2 catch_all=1 unterminated")
	assert.Contains(t, stdout, "标记中有 3 个 CLASS 段")

	code, _, _ = runCLI(t, "inspect", filepath.Join(f.data, "nope.pcl"))
	assert.Equal(t, 1, code)
}
