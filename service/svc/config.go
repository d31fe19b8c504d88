package svc

import (
	"gorm.io/gorm"

	"github.com/ProjectsTask/EasyAuction/chain/chainclient"
	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/service/auctionmanager"
	"github.com/ProjectsTask/EasyAuction/service/notify"
)

// CtxConfig 以 Option 模式组装 ServerCtx
type CtxConfig struct {
	db          *gorm.DB
	store       dao.Store
	manager     *auctionmanager.Manager
	dispatcher  *notify.Dispatcher
	chainClient *chainclient.Client
}

type CtxOption func(conf *CtxConfig)

func NewServerCtx(options ...CtxOption) *ServerCtx {
	c := &CtxConfig{}
	for _, opt := range options {
		opt(c)
	}
	return &ServerCtx{
		DB:          c.db,
		Store:       c.store,
		Manager:     c.manager,
		Dispatcher:  c.dispatcher,
		ChainClient: c.chainClient,
	}
}

func WithDB(db *gorm.DB) CtxOption {
	return func(conf *CtxConfig) {
		conf.db = db
	}
}

func WithStore(store dao.Store) CtxOption {
	return func(conf *CtxConfig) {
		conf.store = store
	}
}

func WithManager(manager *auctionmanager.Manager) CtxOption {
	return func(conf *CtxConfig) {
		conf.manager = manager
	}
}

func WithDispatcher(dispatcher *notify.Dispatcher) CtxOption {
	return func(conf *CtxConfig) {
		conf.dispatcher = dispatcher
	}
}

func WithChainClient(client *chainclient.Client) CtxOption {
	return func(conf *CtxConfig) {
		conf.chainClient = client
	}
}
