package run

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/John-Robertt/aprcmp/internal/classlist"
	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/markup"
)

const (
	SideCandidate = "candidate"
	SideReference = "reference"
)

// SourceError 表示某一侧分类文件无法读取/解析（该 run 会被跳过）。
type SourceError struct {
	Side string
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s 文件不可读 %q：%v", e.Side, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// loadSide 读取并解析一侧分类文件；非致命的标记问题以 warning 记到 res 上。
func loadSide(side, path string, census bool, res *domain.RunResult, log *zap.Logger) (classlist.List, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return classlist.List{}, &SourceError{Side: side, Path: path, Err: err}
	}

	l, err := classlist.Parse(bytes.NewReader(b))
	if err != nil {
		return classlist.List{}, &SourceError{Side: side, Path: path, Err: err}
	}
	log.Debug("分类文件已解析",
		zap.String("side", side),
		zap.String("path", path),
		zap.Int("subsamples", l.Len()),
		zap.Int("patches", l.PatchCount()),
	)

	if l.Malformed() {
		warn(res, log, domain.WarnMalformedMarkup,
			fmt.Sprintf("%s：subsample %v 到文件末尾仍未结束（缺少 '<'）", side, l.Unterminated))
	}

	if census {
		c, err := markup.TakeBytes(b)
		switch {
		case err != nil:
			log.Debug("标记普查失败", zap.String("side", side), zap.Error(err))
		case c.Sections > l.Len():
			warn(res, log, domain.WarnMarkupCensusMismatch,
				fmt.Sprintf("%s：标记中有 %d 个 CLASS 段，解析只得到 %d 个 subsample", side, c.Sections, l.Len()))
		}
	}
	return l, nil
}

func warn(res *domain.RunResult, log *zap.Logger, code, msg string) {
	res.Warnings = append(res.Warnings, domain.Warning{Code: code, Msg: msg})
	log.Warn("run 告警", zap.String("code", code), zap.String("detail", msg))
}
