package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ProjectsTask/EasyAuction/api/v1"
	"github.com/ProjectsTask/EasyAuction/service/svc"
)

func loadV1(r *gin.Engine, svcCtx *svc.ServerCtx) {
	apiV1 := r.Group("/api/v1")

	auctions := apiV1.Group("/auctions")
	{
		auctions.POST("", v1.CreateAuctionHandler(svcCtx))
		auctions.GET("/:id", v1.GetAuctionHandler(svcCtx))
		auctions.POST("/:id/cancel", v1.CancelAuctionHandler(svcCtx))
		auctions.POST("/:id/channel", v1.CreateChannelHandler(svcCtx))
		auctions.GET("/:id/bids", v1.AuctionBidsHandler(svcCtx))
		auctions.POST("/:id/settle", v1.SettleHandler(svcCtx))
		auctions.GET("/:id/attempts", v1.SettlementAttemptsHandler(svcCtx))
		auctions.GET("/:id/ws", v1.SubscribeHandler(svcCtx))
	}

	channels := apiV1.Group("/channels")
	{
		channels.GET("/:channel_id", v1.GetChannelHandler(svcCtx))
		channels.POST("/:channel_id/bids", v1.SubmitBidHandler(svcCtx))
	}
}
