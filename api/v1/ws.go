package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/metrics"
	"github.com/ProjectsTask/EasyAuction/service/notify"
	"github.com/ProjectsTask/EasyAuction/service/svc"
	"github.com/ProjectsTask/EasyAuction/xhttp"
)

const (
	eventQueueSize = 256
	pingInterval   = 15 * time.Second
	writeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由 cors 中间件统一处理
	CheckOrigin: func(r *http.Request) bool { return true },
}

// session 单个 websocket 连接, 只有 run 协程写连接
type session struct {
	logger  *zap.Logger
	conn    *websocket.Conn
	eventCh chan []byte
}

func newSession(logger *zap.Logger, conn *websocket.Conn) *session {
	return &session{
		logger:  logger,
		conn:    conn,
		eventCh: make(chan []byte, eventQueueSize),
	}
}

// send 作为 DeliveryFn 注册, 队列满时丢弃而不是阻塞广播方
func (s *session) send(eventData []byte) {
	select {
	case s.eventCh <- eventData:
	default:
		metrics.EventDropped()
		s.logger.Warn("event channel is full, dropping event")
	}
}

// run 退出时 (包括 panic) 关闭连接, 让读循环随之退出
func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case data := <-s.eventCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = s.conn.WriteMessage(websocket.TextMessage, data)
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = s.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			s.logger.Info("websocket session closed", zap.Error(err))
			return
		}
	}
}

// SubscribeHandler 订阅某个拍卖的实时事件
// 投递尽力而为, 断线重连后客户端应重新拉取通道状态
func SubscribeHandler(svcCtx *svc.ServerCtx) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("id")
		if _, err := svcCtx.Manager.GetAuction(c.Request.Context(), auctionID); err != nil {
			xhttp.Error(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 已经写过响应
			xzap.WithContext(c.Request.Context()).Warn("failed on upgrade websocket", zap.Error(err))
			return
		}
		defer conn.Close()

		logger := xzap.WithContext(c.Request.Context()).With(zap.String("auction_id", auctionID))
		s := newSession(logger, conn)
		unsubscribe := svcCtx.Dispatcher.Subscribe(auctionID, notify.DeliveryFn(s.send))
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		threading.GoSafe(func() { s.run(ctx) })

		// 客户端不需要发送任何消息, 读循环只用于感知断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
