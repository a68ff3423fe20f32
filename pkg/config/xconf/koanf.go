package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

type koanfConfig struct {
	k       *koanf.Koanf
	path    string
	format  Format
	opts    *Options
	mu      sync.RWMutex
	isBytes bool
}

// New 从文件加载，按扩展名识别格式（.yaml/.yml/.json）。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	options := applyOptions(opts)

	c := &koanfConfig{path: path, format: format, opts: options}
	k, err := c.load()
	if err != nil {
		return nil, err
	}
	c.k = k
	return c, nil
}

// NewFromBytes 从字节加载，空数据得到只含环境变量覆盖的配置。
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}
	options := applyOptions(opts)

	k := koanf.New(options.Delim)
	if len(data) > 0 {
		if err := loadData(k, data, format); err != nil {
			return nil, err
		}
	}
	if err := loadEnv(k, options); err != nil {
		return nil, err
	}
	return &koanfConfig{k: k, format: format, opts: options, isBytes: true}, nil
}

func applyOptions(opts []Option) *Options {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (c *koanfConfig) load() (*koanf.Koanf, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k := koanf.New(c.opts.Delim)
	if err := loadData(k, data, c.format); err != nil {
		return nil, err
	}
	if err := loadEnv(k, c.opts); err != nil {
		return nil, err
	}
	return k, nil
}

func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

func (c *koanfConfig) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.Tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Reload 失败时保留旧配置。
func (c *koanfConfig) Reload() error {
	if c.isBytes {
		return ErrNotReloadable
	}
	k, err := c.load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.k = k
	c.mu.Unlock()
	return nil
}

func (c *koanfConfig) Path() string {
	return c.path
}

func (c *koanfConfig) Format() Format {
	return c.format
}

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
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

func loadEnv(k *koanf.Koanf, opts *Options) error {
	if opts.EnvPrefix == "" {
		return nil
	}
	prefix := opts.EnvPrefix
	delim := opts.Delim
	provider := env.Provider(delim, env.Opt{
		Prefix:      prefix,
		EnvironFunc: opts.Environ,
		TransformFunc: func(key, value string) (string, any) {
			return EnvKey(prefix, delim, key), value
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("%w: env: %w", ErrLoadFailed, err)
	}
	return nil
}

// EnvKey 把环境变量名转换为配置键：去掉前缀、转小写、"__" 替换为 delim。
func EnvKey(prefix, delim, name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, prefix))
	return strings.ReplaceAll(key, "__", delim)
}
