package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/common/utils"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/service/auctionmanager"
	"github.com/ProjectsTask/EasyAuction/service/svc"
	"github.com/ProjectsTask/EasyAuction/types/v1"
	"github.com/ProjectsTask/EasyAuction/xhttp"
)

// CreateAuctionHandler 卖家挂拍, 返回拍卖记录与通道 ID
func CreateAuctionHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateAuctionParam
		if err := c.ShouldBindJSON(&req); err != nil {
			xhttp.Error(c, errcode.NewCustomErr(utils.TranslateError(err)))
			return
		}
		startingPrice, err := decimal.NewFromString(req.StartingPrice)
		if err != nil {
			xhttp.Error(c, errcode.NewCustomErr("invalid starting_price"))
			return
		}
		minIncrement, err := decimal.NewFromString(req.MinIncrement)
		if err != nil {
			xhttp.Error(c, errcode.NewCustomErr("invalid min_increment"))
			return
		}

		auction, channelID, err := svcCtx.Manager.CreateAuction(c.Request.Context(), auctionmanager.CreateParams{
			ID:                req.ID,
			OnchainAuctionID:  req.OnchainAuctionID,
			Seller:            req.Seller,
			CollectionAddress: req.CollectionAddress,
			TokenId:           req.TokenId,
			StartTime:         req.StartTime,
			EndTime:           req.EndTime,
			StartingPrice:     startingPrice,
			MinIncrement:      minIncrement,
		})
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, types.CreateAuctionResp{Auction: auction, ChannelID: channelID})
	}
}

func GetAuctionHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := svcCtx.Manager.GetAuction(c.Request.Context(), c.Param("id"))
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, auction)
	}
}

// CancelAuctionHandler 卖家在无人出价时取消拍卖
func CancelAuctionHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CancelAuctionParam
		if err := c.ShouldBindJSON(&req); err != nil {
			xhttp.Error(c, errcode.NewCustomErr(utils.TranslateError(err)))
			return
		}
		if err := svcCtx.Manager.CancelAuction(c.Request.Context(), c.Param("id"), req.Seller); err != nil {
			xhttp.Error(c, err)
			return
		}
		auction, err := svcCtx.Manager.GetAuction(c.Request.Context(), c.Param("id"))
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, auction)
	}
}

// CreateChannelHandler 返回 (必要时重建) 拍卖的通道及其当前状态
func CreateChannelHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID, err := svcCtx.Manager.CreateChannel(c.Request.Context(), c.Param("id"))
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		state, err := svcCtx.Manager.GetChannelState(channelID)
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, types.ChannelResp{ChannelID: channelID, State: state})
	}
}

func GetChannelHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID := c.Param("channel_id")
		state, err := svcCtx.Manager.GetChannelState(channelID)
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, types.ChannelResp{ChannelID: channelID, State: state})
	}
}
