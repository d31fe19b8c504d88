package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/ProjectsTask/EasyAuction/service/svc"
	"github.com/ProjectsTask/EasyAuction/types/v1"
	"github.com/ProjectsTask/EasyAuction/xhttp"
)

// SettleHandler 触发结算, 对已完成的拍卖重复调用返回同一结果
func SettleHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcCtx.Manager.Settle(c.Request.Context(), c.Param("id"))
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, res)
	}
}

func SettlementAttemptsHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		attempts, err := svcCtx.Manager.ListAttempts(c.Request.Context(), c.Param("id"))
		if err != nil {
			xhttp.Error(c, err)
			return
		}
		xhttp.OkJson(c, types.AttemptsResp{Result: attempts, Count: len(attempts)})
	}
}
