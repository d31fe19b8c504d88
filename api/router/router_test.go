package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/config"
	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/service/auctionmanager"
	"github.com/ProjectsTask/EasyAuction/service/notify"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/service/signer/signertest"
	"github.com/ProjectsTask/EasyAuction/service/svc"
	"github.com/ProjectsTask/EasyAuction/service/transfer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
	"github.com/ProjectsTask/EasyAuction/types/v1"
)

const (
	t0         = int64(1_700_000_000)
	seller     = "0x00000000000000000000000000000000000000aa"
	collection = "0x00000000000000000000000000000000000000cc"
)

type clock struct {
	mu  sync.Mutex
	now int64
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *clock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

type response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	clock  *clock
	svcCtx *svc.ServerCtx
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clk := &clock{now: t0}
	store := dao.NewMemStore()
	dispatcher := notify.NewDispatcher(zap.NewNop())
	manager := auctionmanager.New(store, signer.NewVerifier(signertest.Domain), transfer.OffChain{}, dispatcher,
		auctionmanager.WithClock(clk.Now), auctionmanager.WithFeeBps(250))
	svcCtx := svc.NewServerCtx(
		svc.WithStore(store),
		svc.WithManager(manager),
		svc.WithDispatcher(dispatcher),
	)
	svcCtx.C = &config.Config{
		Api:     config.Api{MaxNum: 100},
		Monitor: &config.Monitor{MetricsEnable: true},
	}

	r, err := NewRouter(svcCtx)
	require.NoError(t, err)
	return &testServer{clock: clk, svcCtx: svcCtx, engine: r}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (s *testServer) createAuction(t *testing.T) string {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/v1/auctions", map[string]interface{}{
		"id":                 "A",
		"seller":             seller,
		"collection_address": collection,
		"token_id":           "42",
		"start_time":         t0,
		"end_time":           t0 + 3600,
		"starting_price":     "100",
		"min_increment":      "10",
	})
	require.Equal(t, http.StatusOK, code, resp.Msg)
	var created struct {
		ChannelID string `json:"channel_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.ChannelID)
	return created.ChannelID
}

func bidBody(b *auctionmodel.Bid) map[string]interface{} {
	return map[string]interface{}{
		"auction_id": b.AuctionID,
		"bidder":     b.Bidder,
		"amount":     b.Amount.String(),
		"nonce":      b.Nonce,
		"timestamp":  b.Timestamp,
		"signature":  b.Signature,
	}
}

func TestRouter_AuctionLifecycle(t *testing.T) {
	s := newTestServer(t)
	channelID := s.createAuction(t)
	alice := signertest.NewBidder(t)
	bob := signertest.NewBidder(t)

	s.clock.Set(t0 + 10)
	code, resp := s.do(t, http.MethodPost, "/api/v1/channels/"+channelID+"/bids", bidBody(alice.Bid(t, "A", 100, 1, t0+10)))
	require.Equal(t, http.StatusOK, code, resp.Msg)

	// 未达到最低加价被拒绝, data 中带有最低出价
	s.clock.Set(t0 + 20)
	code, resp = s.do(t, http.MethodPost, "/api/v1/channels/"+channelID+"/bids", bidBody(bob.Bid(t, "A", 105, 1, t0+20)))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Msg, "below_minimum")
	var rejected auctionmanager.BidResult
	require.NoError(t, json.Unmarshal(resp.Data, &rejected))
	assert.False(t, rejected.Decision.Accepted)
	assert.Equal(t, "110", rejected.Decision.RequiredMinimum.String())

	code, resp = s.do(t, http.MethodPost, "/api/v1/channels/"+channelID+"/bids", bidBody(bob.Bid(t, "A", 120, 1, t0+20)))
	require.Equal(t, http.StatusOK, code, resp.Msg)

	code, resp = s.do(t, http.MethodGet, "/api/v1/auctions/A/bids", nil)
	require.Equal(t, http.StatusOK, code)
	var bids struct {
		HighestBid    string `json:"highest_bid"`
		HighestBidder string `json:"highest_bidder"`
		Count         int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &bids))
	assert.Equal(t, 2, bids.Count)
	assert.Equal(t, "120", bids.HighestBid)
	assert.Equal(t, strings.ToLower(bob.Address), bids.HighestBidder)

	code, resp = s.do(t, http.MethodGet, "/api/v1/auctions/A/bids?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	var page types.AuctionBidsResp
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Result, 1)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, "120", page.Result[0].Amount.String())

	code, _ = s.do(t, http.MethodGet, "/api/v1/auctions/A/bids?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// 结束前不能结算
	code, _ = s.do(t, http.MethodPost, "/api/v1/auctions/A/settle", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	s.clock.Set(t0 + 4000)
	code, resp = s.do(t, http.MethodPost, "/api/v1/auctions/A/settle", nil)
	require.Equal(t, http.StatusOK, code, resp.Msg)
	var result struct {
		Winner         string `json:"winner"`
		WinningAmount  string `json:"winning_amount"`
		SellerProceeds string `json:"seller_proceeds"`
		PlatformFee    string `json:"platform_fee"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, strings.ToLower(bob.Address), result.Winner)
	assert.Equal(t, "120", result.WinningAmount)
	assert.Equal(t, "117", result.SellerProceeds)
	assert.Equal(t, "3", result.PlatformFee)

	code, resp = s.do(t, http.MethodGet, "/api/v1/auctions/A", nil)
	require.Equal(t, http.StatusOK, code)
	var auction auctionmodel.Auction
	require.NoError(t, json.Unmarshal(resp.Data, &auction))
	assert.Equal(t, auctionmodel.AuctionStatusCompleted, auction.Status)

	code, resp = s.do(t, http.MethodGet, "/api/v1/auctions/A/attempts", nil)
	require.Equal(t, http.StatusOK, code)
	var attempts struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &attempts))
	assert.Equal(t, 1, attempts.Count)
}

func TestRouter_RequestValidation(t *testing.T) {
	s := newTestServer(t)
	channelID := s.createAuction(t)

	tests := []struct {
		name    string
		path    string
		body    map[string]interface{}
		wantMsg string
	}{
		{
			name:    "bad seller address",
			wantMsg: "seller must be a 0x-prefixed 40 hex character address",
			path:    "/api/v1/auctions",
			body: map[string]interface{}{
				"seller": "0x123", "collection_address": collection, "token_id": "1",
				"start_time": t0, "end_time": t0 + 10, "starting_price": "1", "min_increment": "1",
			},
		},
		{
			name:    "end before start",
			wantMsg: "end_time must be greater than",
			path:    "/api/v1/auctions",
			body: map[string]interface{}{
				"seller": seller, "collection_address": collection, "token_id": "1",
				"start_time": t0, "end_time": t0 - 10, "starting_price": "1", "min_increment": "1",
			},
		},
		{
			name:    "negative amount",
			wantMsg: "amount must be a non-negative integer string",
			path:    "/api/v1/channels/" + channelID + "/bids",
			body: map[string]interface{}{
				"auction_id": "A", "bidder": seller, "amount": "-5", "nonce": 1,
				"timestamp": t0, "signature": "0x" + strings.Repeat("ab", 65),
			},
		},
		{
			name: "short signature",
			path: "/api/v1/channels/" + channelID + "/bids",
			body: map[string]interface{}{
				"auction_id": "A", "bidder": seller, "amount": "5", "nonce": 1,
				"timestamp": t0, "signature": "0xabcd",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			if tt.wantMsg != "" {
				assert.Contains(t, resp.Msg, tt.wantMsg)
			}
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/v1/auctions/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/auctions/missing/channel", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/channels/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_CancelAuction(t *testing.T) {
	s := newTestServer(t)
	s.createAuction(t)

	code, _ := s.do(t, http.MethodPost, "/api/v1/auctions/A/cancel", map[string]interface{}{
		"seller": "0x00000000000000000000000000000000000000bb",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := s.do(t, http.MethodPost, "/api/v1/auctions/A/cancel", map[string]interface{}{"seller": seller})
	require.Equal(t, http.StatusOK, code, resp.Msg)
	var auction auctionmodel.Auction
	require.NoError(t, json.Unmarshal(resp.Data, &auction))
	assert.Equal(t, auctionmodel.AuctionStatusCancelled, auction.Status)
}

func TestRouter_ChannelState(t *testing.T) {
	s := newTestServer(t)
	channelID := s.createAuction(t)

	code, resp := s.do(t, http.MethodPost, "/api/v1/auctions/A/channel", nil)
	require.Equal(t, http.StatusOK, code)
	var ch struct {
		ChannelID string `json:"channel_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ch))
	assert.Equal(t, channelID, ch.ChannelID)

	code, _ = s.do(t, http.MethodGet, "/api/v1/channels/"+channelID, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Subscribe(t *testing.T) {
	s := newTestServer(t)
	channelID := s.createAuction(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/auctions/A/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return s.svcCtx.Dispatcher.Subscribers("A") == 1
	}, time.Second, 10*time.Millisecond)

	alice := signertest.NewBidder(t)
	s.clock.Set(t0 + 10)
	code, resp := s.do(t, http.MethodPost, "/api/v1/channels/"+channelID+"/bids", bidBody(alice.Bid(t, "A", 100, 1, t0+10)))
	require.Equal(t, http.StatusOK, code, resp.Msg)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e notify.Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, notify.EventBidAccepted, e.Type)
	assert.Equal(t, "A", e.Topic)

	// 断开后订阅被移除
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return s.svcCtx.Dispatcher.Subscribers("A") == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/auctions/missing/ws", nil)
	assert.Error(t, err)
}
