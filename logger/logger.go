package logger

const (
	ModeConsole = "console"
	ModeFile    = "file"

	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// LogConf 日志配置
type LogConf struct {
	ServiceName string `toml:"service_name" mapstructure:"service_name" json:"service_name"` // 服务名, 写入每条日志
	Mode        string `toml:"mode" mapstructure:"mode" json:"mode"`                         // console 或 file
	Encoding    string `toml:"encoding" mapstructure:"encoding" json:"encoding"`             // json 或 console
	Path        string `toml:"path" mapstructure:"path" json:"path"`                         // file 模式下的日志目录
	Level       string `toml:"level" mapstructure:"level" json:"level"`                      // debug, info, warn, error
	MaxSize     int    `toml:"max_size" mapstructure:"max_size" json:"max_size"`             // 单个文件大小 (MB)
	KeepDays    int    `toml:"keep_days" mapstructure:"keep_days" json:"keep_days"`          // 保留天数
	Compress    bool   `toml:"compress" mapstructure:"compress" json:"compress"`             // 是否压缩归档
}
