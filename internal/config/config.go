package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/shotnamer/internal/infra/httpx"
	"github.com/John-Robertt/shotnamer/internal/naming"
	"github.com/John-Robertt/shotnamer/internal/vision"
	"github.com/John-Robertt/shotnamer/internal/watch"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeDirNotFound 表示目标目录不存在。
	ErrCodeDirNotFound = "dir_not_found"
	// ErrCodeNotADir 表示目标路径存在但不是目录。
	ErrCodeNotADir = "not_a_dir"
	// ErrCodeMissingAPIKey 表示环境变量中没有推理接口的密钥。
	ErrCodeMissingAPIKey = "missing_api_key"
)

const (
	// APIKeyEnv 是推理接口密钥所在的环境变量。
	APIKeyEnv = "OPENAI_API_KEY"
	// FileName 是默认配置文件名（位于 os.UserConfigDir()/shotnamer/ 下）。
	FileName = "config.yaml"

	MinMaxLength = 16
	MaxMaxLength = 200
)

// userConfigDir 在测试中替换。
var userConfigDir = os.UserConfigDir

// CLIArgs 是 CLI 解析后的参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：CLI 显式给出的值总是覆盖配置文件。
type CLIArgs struct {
	Dir string

	Watch  bool
	DryRun bool

	Model    string
	ModelSet bool

	// ConfigPath 非空时该文件必须存在；为空时尝试默认位置（可选）。
	ConfigPath string
	ReportPath string

	NoTag   bool
	NoCache bool
	Verbose bool
}

// FileConfig 对应 config.yaml 的解析结构。
type FileConfig struct {
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	ProxyURL     string        `yaml:"proxy_url"`
	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxLength    int           `yaml:"max_length"`
	Tag          *bool         `yaml:"tag"`
	Cache        *bool         `yaml:"cache"`
	Timeout      time.Duration `yaml:"timeout"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Dir string

	Watch  bool
	DryRun bool

	Model    string
	BaseURL  string
	ProxyURL string
	APIKey   string

	Debounce     time.Duration
	PollInterval time.Duration
	MaxLength    int
	Tag          bool
	Cache        bool
	Timeout      time.Duration

	ReportPath string
	Verbose    bool

	// ConfigFile 是实际读取的配置文件路径；未读取任何文件时为空。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeDirNotFound:
		return fmt.Sprintf("%s：目录不存在 %q", e.Code, e.Path)
	case ErrCodeNotADir:
		return fmt.Sprintf("%s：%q 不是目录", e.Code, e.Path)
	case ErrCodeMissingAPIKey:
		return fmt.Sprintf("%s：未设置环境变量 %s（export %s=...）", e.Code, APIKeyEnv, APIKeyEnv)
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

// LoadEffective 读取配置文件，与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：读取该文件（必选）
// 2) 否则尝试 os.UserConfigDir()/shotnamer/config.yaml（可选，不存在不报错）
//
// 覆盖优先级（固定）：
// - model：CLI -m > config > 默认 gpt-4o-mini
// - tag：--no-tag > config.tag > 默认 true
// - cache：--no-cache > config.cache > 默认 true
// - 其他字段：仅由 config 控制（CLI 不暴露）
//
// 校验顺序：配置文件 -> 目标目录 -> 密钥（与用户修复问题的顺序一致）。
func LoadEffective(cwd string, cli CLIArgs, getenv func(string) string) (EffectiveConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else if p, ok := DefaultPath(); ok {
		fc, exists, err = readFileConfig(p)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if exists {
			cfgPath = p
		}
	}

	eff, err := merge(cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}

	eff.Dir = absCleanFrom(cwdAbs, cli.Dir)
	if err := checkDir(eff.Dir); err != nil {
		return EffectiveConfig{}, err
	}

	eff.APIKey = strings.TrimSpace(getenv(APIKeyEnv))
	if eff.APIKey == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingAPIKey}
	}
	return eff, nil
}

// DefaultPath 返回默认配置文件位置；平台无法确定用户配置目录时 ok=false。
func DefaultPath() (string, bool) {
	dir, err := userConfigDir()
	if err != nil || dir == "" {
		return "", false
	}
	return filepath.Join(dir, "shotnamer", FileName), true
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// model：CLI > config > 默认
	model := vision.DefaultModel
	if cli.ModelSet {
		model = strings.TrimSpace(cli.Model)
		if model == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("--model 不能为空")}
		}
	} else if strings.TrimSpace(fc.Model) != "" {
		model = strings.TrimSpace(fc.Model)
	}

	baseURL := strings.TrimSpace(fc.BaseURL)
	if err := validateHTTPURL("base_url", baseURL); err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	proxyURL := strings.TrimSpace(fc.ProxyURL)
	if err := validateHTTPURL("proxy_url", proxyURL); err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	debounce, err := positiveDuration("debounce", fc.Debounce, watch.DefaultDebounce)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	poll, err := positiveDuration("poll_interval", fc.PollInterval, watch.DefaultInterval)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	timeout, err := positiveDuration("timeout", fc.Timeout, httpx.DefaultTimeout)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	// max_length：0 表示默认；其余截断到 [16, 200]。
	maxLength := fc.MaxLength
	if maxLength == 0 {
		maxLength = naming.DefaultMaxLength
	}
	if maxLength < MinMaxLength {
		maxLength = MinMaxLength
	}
	if maxLength > MaxMaxLength {
		maxLength = MaxMaxLength
	}

	tag := true
	if fc.Tag != nil {
		tag = *fc.Tag
	}
	if cli.NoTag {
		tag = false
	}

	useCache := true
	if fc.Cache != nil {
		useCache = *fc.Cache
	}
	if cli.NoCache {
		useCache = false
	}

	return EffectiveConfig{
		Watch:        cli.Watch,
		DryRun:       cli.DryRun,
		Model:        model,
		BaseURL:      baseURL,
		ProxyURL:     proxyURL,
		Debounce:     debounce,
		PollInterval: poll,
		MaxLength:    maxLength,
		Tag:          tag,
		Cache:        useCache,
		Timeout:      timeout,
		ReportPath:   strings.TrimSpace(cli.ReportPath),
		Verbose:      cli.Verbose,
		ConfigFile:   cfgPath,
	}, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &Error{Code: ErrCodeDirNotFound, Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &Error{Code: ErrCodeNotADir, Path: dir}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func positiveDuration(field string, v, def time.Duration) (time.Duration, error) {
	if v == 0 {
		return def, nil
	}
	if v < 0 {
		return 0, fmt.Errorf("%s 必须大于 0，实际是 %s", field, v)
	}
	return v, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return base
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
// 未知字段视为错误，避免拼写错误被静默忽略。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件等价于全部默认。
			return FileConfig{}, true, nil
		}
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
