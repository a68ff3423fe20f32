package xconf

// Options 配置加载选项。
type Options struct {
	// Delim 键分隔符，默认 "."
	Delim string
	// Tag Unmarshal 使用的结构体标签，默认 "koanf"
	Tag string
	// EnvPrefix 非空时叠加以此为前缀的环境变量
	EnvPrefix string
	// Environ 环境变量来源，默认 os.Environ，测试可注入
	Environ func() []string
}

// Option 配置选项。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Delim: ".",
		Tag:   "koanf",
	}
}

// WithDelim 设置键分隔符。
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag 设置结构体标签名。
func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}

// WithEnv 启用环境变量覆盖，prefix 如 "SECKILL_"。
func WithEnv(prefix string) Option {
	return func(o *Options) {
		o.EnvPrefix = prefix
	}
}

// WithEnviron 替换环境变量来源。
func WithEnviron(fn func() []string) Option {
	return func(o *Options) {
		o.Environ = fn
	}
}
