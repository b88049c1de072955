package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/aprcmp/internal/domain"
	"github.com/John-Robertt/aprcmp/internal/report"
)

const (
	// ErrCodeNotFound 表示未在 CLI 给出 manifest，且找不到配置文件。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingManifest 表示未在 CLI 给出 manifest，且配置文件缺少 manifest 字段。
	ErrCodeMissingManifest = domain.ErrCodeConfigMissingManifest
)

const (
	// FileName 是 cwd 下默认发现的配置文件名。
	FileName = "aprcmp.yaml"
	// DefaultSubsample 是未指定时选择的子样本（1-based）。
	DefaultSubsample = 1
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 例如 --append=false 必须能覆盖 report_mode: append。
type CLIArgs struct {
	ConfigPath string
	Manifest   string
	Out        string

	Subsample    int
	SubsampleSet bool

	Append    bool
	AppendSet bool

	HistoryDB   string
	MetricsFile string

	NoCensus    bool
	NoCensusSet bool

	Verbose bool
}

// FileConfig 对应 aprcmp.yaml 的解析结构。未知字段忽略。
type FileConfig struct {
	Manifest    string `yaml:"manifest"`
	Out         string `yaml:"out"`
	Subsample   int    `yaml:"subsample"`
	ReportMode  string `yaml:"report_mode"`
	HistoryDB   string `yaml:"history_db"`
	MetricsFile string `yaml:"metrics_file"`
	Census      *bool  `yaml:"census"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 路径字段均为 clean + absolute；可选字段为空表示关闭。
type EffectiveConfig struct {
	// ConfigPath 是实际读取到的配置文件；未读取时为空。
	ConfigPath string

	Manifest   string
	OutDir     string
	Subsample  int
	ReportMode report.Mode

	HistoryDB   string
	MetricsFile string

	Census  bool
	Verbose bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingManifest:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 manifest", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 给了 --config：必须存在
// 2) 否则尝试 <cwd>/aprcmp.yaml；CLI 给了 manifest 时可选，没给时必选且其中必须包含 manifest
//
// 覆盖优先级（固定）：CLI > config > 默认。
// 相对路径一律以 cwd 为基准解析。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	fc, cfgPath, err := discover(cwdAbs, cli.ConfigPath)
	if err != nil {
		return EffectiveConfig{}, err
	}

	manifest := strings.TrimSpace(cli.Manifest)
	if manifest == "" {
		if cfgPath == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileName), Err: os.ErrNotExist}
		}
		manifest = strings.TrimSpace(fc.Manifest)
		if manifest == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingManifest, Path: cfgPath}
		}
	}

	return merge(cwdAbs, manifest, cli, fc, cfgPath)
}

// HistoryPath 只解析 history_db（history 子命令不需要 manifest）。
// CLI 值优先；都为空时返回空串。
func HistoryPath(cwd, configPath, cliHistory string) (string, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return "", &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	if strings.TrimSpace(cliHistory) != "" {
		return absCleanFrom(cwdAbs, cliHistory), nil
	}
	fc, _, err := discover(cwdAbs, configPath)
	if err != nil {
		return "", err
	}
	return absCleanFrom(cwdAbs, fc.HistoryDB), nil
}

// discover 返回解析后的配置与实际读取的文件路径（未读取时为空）。
func discover(cwdAbs, explicit string) (FileConfig, string, error) {
	if strings.TrimSpace(explicit) != "" {
		p := absCleanFrom(cwdAbs, explicit)
		fc, exists, err := readFileConfig(p)
		if err != nil {
			return FileConfig{}, "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if !exists {
			return FileConfig{}, "", &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
		}
		return fc, p, nil
	}

	p := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(p)
	if err != nil {
		return FileConfig{}, "", &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}
	if !exists {
		return FileConfig{}, "", nil
	}
	return fc, p, nil
}

func merge(cwdAbs, manifest string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// subsample：CLI > config > 默认 1；必须 >= 1。
	subsample := DefaultSubsample
	if cli.SubsampleSet {
		subsample = cli.Subsample
	} else if fc.Subsample != 0 {
		subsample = fc.Subsample
	}
	if subsample < 1 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("subsample 必须 >= 1，实际是 %d", subsample)}
	}

	// report_mode：--append > config > 默认 truncate。
	mode := report.ModeTruncate
	if strings.TrimSpace(fc.ReportMode) != "" {
		m, err := report.ParseMode(strings.TrimSpace(fc.ReportMode))
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		mode = m
	}
	if cli.AppendSet {
		mode = report.ModeTruncate
		if cli.Append {
			mode = report.ModeAppend
		}
	}

	// out：CLI > config > cwd。
	out := strings.TrimSpace(cli.Out)
	if out == "" {
		out = strings.TrimSpace(fc.Out)
	}
	outDir := cwdAbs
	if out != "" {
		outDir = absCleanFrom(cwdAbs, out)
	}

	history := strings.TrimSpace(cli.HistoryDB)
	if history == "" {
		history = strings.TrimSpace(fc.HistoryDB)
	}
	metricsFile := strings.TrimSpace(cli.MetricsFile)
	if metricsFile == "" {
		metricsFile = strings.TrimSpace(fc.MetricsFile)
	}

	// census：--no-census > config > 默认 true。
	census := true
	if cli.NoCensusSet {
		census = !cli.NoCensus
	} else if fc.Census != nil {
		census = *fc.Census
	}

	return EffectiveConfig{
		ConfigPath:  cfgPath,
		Manifest:    absCleanFrom(cwdAbs, manifest),
		OutDir:      outDir,
		Subsample:   subsample,
		ReportMode:  mode,
		HistoryDB:   absCleanFrom(cwdAbs, history),
		MetricsFile: absCleanFrom(cwdAbs, metricsFile),
		Census:      census,
		Verbose:     cli.Verbose,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串原样返回。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
