package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ProjectsTask/EasyAuction/api/middleware"
	"github.com/ProjectsTask/EasyAuction/common/utils"
	"github.com/ProjectsTask/EasyAuction/service/svc"
)

func NewRouter(svcCtx *svc.ServerCtx) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := utils.RegisterValidations(v); err != nil {
			return nil, err
		}
	}

	r := gin.New()
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.RLog())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Access-Control-Allow-Origin", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           1 * time.Hour,
	}))

	if svcCtx.C != nil && svcCtx.C.Monitor != nil && svcCtx.C.Monitor.MetricsEnable {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	loadV1(r, svcCtx)

	return r, nil
}
