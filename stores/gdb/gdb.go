package gdb

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config 数据库配置
type Config struct {
	Driver       string `toml:"driver" mapstructure:"driver" json:"driver"` // mysql 或 memory
	User         string `toml:"user" mapstructure:"user" json:"user"`
	Password     string `toml:"password" mapstructure:"password" json:"password"`
	Host         string `toml:"host" mapstructure:"host" json:"host"`
	Port         int    `toml:"port" mapstructure:"port" json:"port"`
	Database     string `toml:"database" mapstructure:"database" json:"database"`
	MaxIdleConns int    `toml:"max_idle_conns" mapstructure:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns int    `toml:"max_open_conns" mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxLifetime  int    `toml:"max_lifetime" mapstructure:"max_lifetime" json:"max_lifetime"` // 秒
	LogLevel     string `toml:"log_level" mapstructure:"log_level" json:"log_level"`
	AutoMigrate  bool   `toml:"auto_migrate" mapstructure:"auto_migrate" json:"auto_migrate"`
}

func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// NewDB 创建 GORM 连接并设置连接池
func NewDB(c *Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(c.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(c.LogLevel)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed on open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed on get sql db")
	}
	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)
	}

	if c.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate 创建或更新拍卖相关表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&auctionmodel.Auction{}, &auctionmodel.Bid{}, &auctionmodel.SettlementAttempt{}); err != nil {
		return errors.Wrap(err, "failed on migrate tables")
	}
	return nil
}
