package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ProjectsTask/EasyAuction/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "easyauction",
	Short: "off-chain bidding and settlement for nft auctions.",
	Long:  "off-chain bidding and settlement for nft auctions.",
}

// Execute 解析命令行并执行子命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config/config.toml", "config file")
}

// initConfig 配置全局 viper, 未指定文件时依次查找当前目录与 home 目录
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath("./config")
		viper.AddConfigPath(home)
		viper.SetConfigName("config")
	}
	viper.SetConfigType("toml")
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
