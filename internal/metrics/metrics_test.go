package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_Counters(t *testing.T) {
	b := New()

	b.ObserveRun("processed")
	b.ObserveRun("processed")
	b.ObserveRun("skipped")
	b.AddCompared(5)
	b.AddCompared(3)
	b.AddCompared(-1)
	b.ObserveWarning("length_mismatch")
	b.ObserveWarning("malformed_markup")

	assert.Equal(t, 2.0, testutil.ToFloat64(b.runs.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.runs.WithLabelValues("skipped")))
	assert.Equal(t, 8.0, testutil.ToFloat64(b.compared))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.mismatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.warnings.WithLabelValues("malformed_markup")))
}

func TestBatch_FinishAndTextfile(t *testing.T) {
	b := New()
	b.ObserveRun("processed")
	b.AddCompared(4)
	b.Finish(1500*time.Millisecond, 3, 4, time.Unix(1700000000, 0))

	assert.Equal(t, 1.5, testutil.ToFloat64(b.duration))
	assert.Equal(t, 0.75, testutil.ToFloat64(b.agreement))

	path := filepath.Join(t.TempDir(), "aprcmp.prom")
	require.NoError(t, b.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	for _, want := range []string{
		`aprcmp_runs_total{status="processed"} 1`,
		`aprcmp_patches_compared_total 4`,
		`aprcmp_batch_duration_seconds 1.5`,
		`aprcmp_batch_finished_timestamp_seconds 1.7e+09`,
	} {
		assert.True(t, strings.Contains(out, want), "textfile 缺少 %q：\n%s", want, out)
	}
}

func TestBatch_NilIsNoop(t *testing.T) {
	var b *Batch
	b.ObserveRun("processed")
	b.AddCompared(1)
	b.ObserveWarning("length_mismatch")
	b.Finish(time.Second, 1, 1, time.Now())
	assert.NoError(t, b.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, b.Registry())
}
