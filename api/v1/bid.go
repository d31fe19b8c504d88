package v1

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/common/utils"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/service/svc"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
	"github.com/ProjectsTask/EasyAuction/types/v1"
	"github.com/ProjectsTask/EasyAuction/xhttp"
)

// SubmitBidHandler 提交链下签名出价
// 被拒绝时返回 400, data 中带有失败规则与最低出价, 重复提交按成功返回
func SubmitBidHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.SubmitBidParam
		if err := c.ShouldBindJSON(&req); err != nil {
			xhttp.Error(c, errcode.NewCustomErr(utils.TranslateError(err)))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			xhttp.Error(c, errcode.NewCustomErr("invalid amount"))
			return
		}

		res, err := svcCtx.Manager.SubmitBid(c.Request.Context(), c.Param("channel_id"), &auctionmodel.Bid{
			AuctionID: req.AuctionID,
			Bidder:    req.Bidder,
			Amount:    amount,
			Nonce:     req.Nonce,
			Timestamp: req.Timestamp,
			Signature: req.Signature,
		})
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		if !res.Decision.Accepted {
			msg := string(res.Decision.Reason)
			if res.Decision.Detail != "" {
				msg += ": " + res.Decision.Detail
			}
			xhttp.ErrorWithData(c, errcode.ErrBidRejected.WithMsg(msg), res)
			return
		}
		xhttp.OkJson(c, res)
	}
}

// AuctionBidsHandler 查询拍卖的出价, 可选 limit 截取前 N 条, 上限为 api.max_num
// count 始终为出价总数
func AuctionBidsHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("id")
		limit := -1
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				xhttp.Error(c, errcode.NewCustomErr("invalid limit"))
				return
			}
			limit = n
		}
		if maxNum := svcCtx.C.Api.MaxNum; maxNum > 0 && (limit < 0 || int64(limit) > maxNum) {
			limit = int(maxNum)
		}

		auction, err := svcCtx.Manager.GetAuction(c.Request.Context(), auctionID)
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		bids, err := svcCtx.Manager.GetBids(c.Request.Context(), auctionID)
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		count := len(bids)
		if limit >= 0 && limit < count {
			bids = bids[:limit]
		}
		xhttp.OkJson(c, types.AuctionBidsResp{
			AuctionID:     auctionID,
			HighestBid:    auction.HighestBid,
			HighestBidder: auction.HighestBidder,
			Result:        bids,
			Count:         count,
		})
	}
}
