package xattempt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 定义配置数据格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// 配置加载错误
var (
	// ErrEmptyPath 配置文件路径为空
	ErrEmptyPath = errors.New("xattempt: config path cannot be empty")

	// ErrUnsupportedFormat 不支持的配置格式
	ErrUnsupportedFormat = errors.New("xattempt: unsupported config format")

	// ErrLoadFailed 配置读取失败
	ErrLoadFailed = errors.New("xattempt: load config failed")

	// ErrParseFailed 配置解析失败
	ErrParseFailed = errors.New("xattempt: parse config failed")
)

// Settings 引擎的可外置配置。
// 覆盖退避常量与尝试次数上限，零值字段回落到默认值。
type Settings struct {
	// MaxAttempts 最大尝试次数（包含首次尝试）。
	MaxAttempts int `koanf:"max_attempts"`

	// BaseDelay 首次延迟重试前的基础延迟（支持 "50ms" 等时长字符串）。
	BaseDelay time.Duration `koanf:"base_delay"`

	// Multiplier 退避增长乘数。
	Multiplier float64 `koanf:"multiplier"`

	// JitterLow 抖动区间下界。
	JitterLow float64 `koanf:"jitter_low"`

	// JitterHigh 抖动区间上界（不含）。
	JitterHigh float64 `koanf:"jitter_high"`
}

// DefaultSettings 返回引擎默认配置。
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts: 3,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		JitterLow:   DefaultJitterLow,
		JitterHigh:  DefaultJitterHigh,
	}
}

// Options 将 Settings 转换为 RunnerOption 列表。
// 零值字段不产生选项（保持 NewRunner 的默认值），
// 非法的 MaxAttempts 原样传递，由 Do 报告。
func (s Settings) Options() []RunnerOption {
	opts := make([]RunnerOption, 0, 4)
	if s.MaxAttempts != 0 {
		opts = append(opts, WithMaxAttempts(s.MaxAttempts))
	}
	if s.BaseDelay > 0 {
		opts = append(opts, WithBaseDelay(s.BaseDelay))
	}
	if s.Multiplier >= 1 {
		opts = append(opts, WithMultiplier(s.Multiplier))
	}
	if s.JitterLow >= 0 && s.JitterHigh > s.JitterLow {
		opts = append(opts, WithJitterRange(s.JitterLow, s.JitterHigh))
	}
	return opts
}

// Runner 用 Settings 构造执行器，extra 中的选项追加在后（可覆盖）。
func (s Settings) Runner(extra ...RunnerOption) *Runner {
	return NewRunner(append(s.Options(), extra...)...)
}

// ParseSettings 从字节数据解析 Settings，需要显式指定格式。
// 未出现的字段保持默认值。
func ParseSettings(data []byte, format Format) (Settings, error) {
	s := DefaultSettings()
	if !isValidFormat(format) {
		return s, ErrUnsupportedFormat
	}
	if len(data) == 0 {
		return s, nil
	}

	k := koanf.New(".")
	if err := loadData(k, data, format); err != nil {
		return s, err
	}
	if err := k.Unmarshal("", &s); err != nil {
		return s, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return s, nil
}

// LoadSettings 从文件加载 Settings。
// 根据文件扩展名自动检测格式（.yaml/.yml 或 .json）。
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return s, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	return ParseSettings(data, format)
}

func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func isValidFormat(f Format) bool {
	return f == FormatYAML || f == FormatJSON
}
