package svc

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ProjectsTask/EasyAuction/chain/chainclient"
	"github.com/ProjectsTask/EasyAuction/config"
	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/service/auctionmanager"
	"github.com/ProjectsTask/EasyAuction/service/notify"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/service/transfer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb"
)

type ServerCtx struct {
	C           *config.Config
	DB          *gorm.DB
	Store       dao.Store
	Manager     *auctionmanager.Manager
	Dispatcher  *notify.Dispatcher
	ChainClient *chainclient.Client
}

// NewServiceContext 按顺序构造所有协作方, 完成之前不接受任何请求
func NewServiceContext(ctx context.Context, c *config.Config) (*ServerCtx, error) {
	// 1. 日志
	logger, err := xzap.SetUp(*c.Log)
	if err != nil {
		return nil, err
	}

	// 2. 持久化
	var db *gorm.DB
	var store dao.Store
	switch c.DB.Driver {
	case gdb.DriverMemory:
		store = dao.NewMemStore()
	default:
		db, err = gdb.NewDB(c.DB)
		if err != nil {
			return nil, err
		}
		store = dao.New(ctx, db)
	}

	// 3. 结算转账
	var transferor transfer.Transferor = transfer.OffChain{}
	var chainClient *chainclient.Client
	if c.Auction.SettlementMode == config.SettlementModeOnChain {
		chainClient, err = chainclient.New(ctx, c.ChainCfg.Endpoint, c.ChainCfg.ID, c.ChainCfg.OperatorKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed on create evm client")
		}
		transferor, err = transfer.NewOnChain(chainClient, c.ChainCfg.AuctionContract,
			c.Auction.FinalityPoll(), c.Auction.FinalityPollAttempts)
		if err != nil {
			return nil, errors.Wrap(err, "failed on create onchain transferor")
		}
		logger.Info("onchain settlement enabled",
			zap.String("operator", chainClient.From().Hex()),
			zap.String("auction_contract", c.ChainCfg.AuctionContract))
	}

	// 4. 通知与核心
	dispatcher := notify.NewDispatcher(logger)
	manager := auctionmanager.New(store, signer.NewVerifier(c.EIP712), transferor, dispatcher,
		auctionmanager.WithFeeBps(c.Auction.PlatformFeeBps))

	serverCtx := NewServerCtx(
		WithDB(db),
		WithStore(store),
		WithManager(manager),
		WithDispatcher(dispatcher),
		WithChainClient(chainClient),
	)
	serverCtx.C = c
	return serverCtx, nil
}

// Close 释放外部连接
func (s *ServerCtx) Close() {
	if s.ChainClient != nil {
		s.ChainClient.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
