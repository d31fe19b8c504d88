package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	logging "github.com/ProjectsTask/EasyAuction/logger"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb"
)

const (
	EnvPrefix = "EASYAUCTION"

	SettlementModeOffChain = "offchain"
	SettlementModeOnChain  = "onchain"
)

// Config 全局配置
type Config struct {
	Api      Api              `toml:"api" mapstructure:"api" json:"api"`
	Monitor  *Monitor         `toml:"monitor" mapstructure:"monitor" json:"monitor"`
	Log      *logging.LogConf `toml:"log" mapstructure:"log" json:"log"`
	DB       *gdb.Config      `toml:"db" mapstructure:"db" json:"db"`
	ChainCfg ChainCfg         `toml:"chain_cfg" mapstructure:"chain_cfg" json:"chain_cfg"`
	EIP712   signer.Domain    `toml:"eip712" mapstructure:"eip712" json:"eip712"`
	Auction  AuctionCfg       `toml:"auction" mapstructure:"auction" json:"auction"`
}

type Api struct {
	Port   string `toml:"port" mapstructure:"port" json:"port"`
	MaxNum int64  `toml:"max_num" mapstructure:"max_num" json:"max_num"` // 列表接口单页上限
}

// ChainCfg 链上结算使用的节点与合约
type ChainCfg struct {
	Name            string `toml:"name" mapstructure:"name" json:"name"`
	ID              int64  `toml:"id" mapstructure:"id" json:"id"`
	Endpoint        string `toml:"endpoint" mapstructure:"endpoint" json:"endpoint"`
	OperatorKey     string `toml:"operator_key" mapstructure:"operator_key" json:"-"`
	AuctionContract string `toml:"auction_contract" mapstructure:"auction_contract" json:"auction_contract"`
}

// AuctionCfg 出价与结算相关参数, 时间单位为秒
type AuctionCfg struct {
	PlatformFeeBps         int64  `toml:"platform_fee_bps" mapstructure:"platform_fee_bps" json:"platform_fee_bps"`
	SettlementMode         string `toml:"settlement_mode" mapstructure:"settlement_mode" json:"settlement_mode"`
	StuckSettlementTimeout int64  `toml:"stuck_settlement_timeout" mapstructure:"stuck_settlement_timeout" json:"stuck_settlement_timeout"`
	WatchdogInterval       int64  `toml:"watchdog_interval" mapstructure:"watchdog_interval" json:"watchdog_interval"`
	ScanEnable             bool   `toml:"scan_enable" mapstructure:"scan_enable" json:"scan_enable"`
	ScanInterval           int64  `toml:"scan_interval" mapstructure:"scan_interval" json:"scan_interval"`
	ScanBatch              int    `toml:"scan_batch" mapstructure:"scan_batch" json:"scan_batch"`
	RetryFailed            bool   `toml:"retry_failed" mapstructure:"retry_failed" json:"retry_failed"`
	FinalityPollInterval   int64  `toml:"finality_poll_interval" mapstructure:"finality_poll_interval" json:"finality_poll_interval"`
	FinalityPollAttempts   int    `toml:"finality_poll_attempts" mapstructure:"finality_poll_attempts" json:"finality_poll_attempts"`
}

func seconds(v int64) time.Duration {
	return time.Duration(v) * time.Second
}

func (a AuctionCfg) StuckTimeout() time.Duration { return seconds(a.StuckSettlementTimeout) }
func (a AuctionCfg) WatchdogEvery() time.Duration { return seconds(a.WatchdogInterval) }
func (a AuctionCfg) ScanEvery() time.Duration { return seconds(a.ScanInterval) }
func (a AuctionCfg) FinalityPoll() time.Duration { return seconds(a.FinalityPollInterval) }

// Monitor 监控配置
type Monitor struct {
	PprofEnable   bool  `toml:"pprof_enable" mapstructure:"pprof_enable" json:"pprof_enable"`
	PprofPort     int64 `toml:"pprof_port" mapstructure:"pprof_port" json:"pprof_port"`
	MetricsEnable bool  `toml:"metrics_enable" mapstructure:"metrics_enable" json:"metrics_enable"`
}

// SetDefaults 未配置时的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.port", ":9000")
	v.SetDefault("api.max_num", 500)
	v.SetDefault("log.service_name", "easyauction")
	v.SetDefault("log.mode", logging.ModeConsole)
	v.SetDefault("log.encoding", logging.EncodingJSON)
	v.SetDefault("log.level", "info")
	v.SetDefault("db.driver", gdb.DriverMySQL)
	v.SetDefault("auction.platform_fee_bps", 0)
	v.SetDefault("auction.settlement_mode", SettlementModeOffChain)
	v.SetDefault("auction.stuck_settlement_timeout", 600)
	v.SetDefault("auction.watchdog_interval", 60)
	v.SetDefault("auction.scan_interval", 30)
	v.SetDefault("auction.scan_batch", 50)
	v.SetDefault("auction.finality_poll_interval", 3)
	v.SetDefault("auction.finality_poll_attempts", 40)
	v.SetDefault("monitor.metrics_enable", true)
}

// UnmarshalConfig 加载并解析指定路径的配置文件
func UnmarshalConfig(configFilePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFilePath)
	v.SetConfigType("toml")
	return load(v)
}

// UnmarshalCmdConfig 使用 cobra 初始化时设置好的全局 viper
func UnmarshalCmdConfig() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed on read config")
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed on unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 启动前检查, 签名域必须与前端签名时完全一致
func (c *Config) Validate() error {
	if c.Log == nil || c.DB == nil {
		return errors.New("log and db sections are required")
	}
	if c.Monitor == nil {
		c.Monitor = &Monitor{}
	}
	if c.EIP712.Name == "" || c.EIP712.Version == "" || c.EIP712.ChainID == 0 {
		return errors.New("eip712 domain name, version and chain_id are required")
	}
	switch c.Auction.SettlementMode {
	case SettlementModeOffChain:
	case SettlementModeOnChain:
		if c.ChainCfg.Endpoint == "" || c.ChainCfg.OperatorKey == "" || c.ChainCfg.AuctionContract == "" {
			return errors.New("onchain settlement requires chain_cfg endpoint, operator_key and auction_contract")
		}
	default:
		return errors.Errorf("unknown settlement mode %q", c.Auction.SettlementMode)
	}
	if c.Auction.PlatformFeeBps < 0 || c.Auction.PlatformFeeBps > 10000 {
		return errors.Errorf("platform_fee_bps %d out of range [0, 10000]", c.Auction.PlatformFeeBps)
	}
	return nil
}
