package cmd

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/config"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/service"
)

var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "run auction api and settlement workers.",
	Long:  "run auction api and settlement workers.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg, err := config.UnmarshalCmdConfig()
		if err != nil {
			xzap.WithContext(ctx).Error("Failed to unmarshal config", zap.Error(err))
			os.Exit(1)
		}

		s, err := service.New(ctx, cfg)
		if err != nil {
			xzap.WithContext(ctx).Error("Failed to create auction server", zap.Error(err))
			os.Exit(1)
		}
		xzap.WithContext(ctx).Info("auction server start", zap.Any("config", cfg))

		onExit := make(chan error, 1)
		if err := s.Start(onExit); err != nil {
			xzap.WithContext(ctx).Error("Failed to start auction server", zap.Error(err))
			s.Stop()
			os.Exit(1)
		}

		if cfg.Monitor.PprofEnable {
			threading.GoSafe(func() {
				if err := http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", cfg.Monitor.PprofPort), nil); err != nil {
					xzap.WithContext(ctx).Error("pprof server exit", zap.Error(err))
				}
			})
		}

		onSignal := make(chan os.Signal, 1)
		signal.Notify(onSignal, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-onSignal:
			xzap.WithContext(ctx).Info("Exit by signal", zap.String("signal", sig.String()))
		case err := <-onExit:
			xzap.WithContext(ctx).Error("Exit by error", zap.Error(err))
		}
		cancel()
		s.Stop()
	},
}

func init() {
	rootCmd.AddCommand(DaemonCmd)
}
