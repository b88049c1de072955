package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_DefaultLevelIsWarn(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)

	l.Info("不应出现")
	l.Warn("run 被跳过", zap.String("run", "run02"), zap.String("code", "source_unreadable"))
	_ = l.Sync()

	out := buf.String()
	if strings.Contains(out, "不应出现") {
		t.Fatalf("默认级别不应输出 info：%q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "run02") || !strings.Contains(out, "source_unreadable") {
		t.Fatalf("warn 输出缺少字段：%q", out)
	}
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true)

	l.Debug("解析完成", zap.Int("subsamples", 2))
	_ = l.Sync()

	if !strings.Contains(buf.String(), "解析完成") {
		t.Fatalf("verbose 时应输出 debug：%q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) 不应返回 nil")
	}
}
