package xconf

import "github.com/knadh/koanf/v2"

// Format 配置文件格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置接口，基础读取直接使用 Client()。
type Config interface {
	// Client 底层 koanf 实例，Reload 后会被替换，不要长期持有
	Client() *koanf.Koanf

	// Unmarshal 反序列化 path 下的配置，path 为空表示全部
	Unmarshal(path string, target any) error

	// Reload 重新读取文件并叠加环境变量，仅文件来源有效
	Reload() error

	// Path 文件路径，字节来源为空
	Path() string

	Format() Format
}
