package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/analytics"
	"github.com/adxyz/adpay/pkg/auction"
	"github.com/adxyz/adpay/pkg/ledger"
	"github.com/adxyz/adpay/pkg/log"
	"github.com/adxyz/adpay/pkg/roles"
	"github.com/adxyz/adpay/pkg/rtb"
	"github.com/adxyz/adpay/pkg/settlement"
	"github.com/adxyz/adpay/pkg/vast"
)

// accountHeader carries the caller identity. Signature-based caller
// authentication is an environment concern outside this service.
const accountHeader = "X-Adpay-Account"

// Server exposes the ledger over HTTP
type Server struct {
	svc      *ledger.Service
	tracker  *analytics.Tracker
	log      log.Logger
	upgrader websocket.Upgrader
}

// NewRouter builds the gin router for the adpay API. The tracker may be
// nil, in which case the analytics endpoints report 404.
func NewRouter(svc *ledger.Service, tracker *analytics.Tracker, logger log.Logger) *gin.Engine {
	s := &Server{
		svc:     svc,
		tracker: tracker,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", accountHeader}
	router.Use(cors.New(config))

	router.Use(s.countRequests)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/roles/grants", s.grantRole)
		api.DELETE("/roles/grants", s.revokeRole)
		api.GET("/roles/:role/:account", s.hasRole)

		api.POST("/ads", s.publishAd)
		api.GET("/ads/:id", s.getAd)
		api.GET("/ads/:id/vast", s.getAdTag)
		api.POST("/ads/:id/bids", s.placeBid)
		api.POST("/ads/:id/settle", s.settleAd)

		api.POST("/withdrawals", s.withdraw)
		api.GET("/balances/:account", s.getBalance)

		api.GET("/analytics", s.getAnalytics)
		api.GET("/analytics/accounts/:account", s.getAccountAnalytics)

		api.POST("/rtb/bid", s.rtbBid)
		api.GET("/events/ws", s.streamEvents)
	}

	return router
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	s.svc.Metrics().RequestsProcessed.
		WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).
		Inc()
}

// caller extracts the account identity header, failing the request when a
// mutating endpoint is called anonymously
func (s *Server) caller(c *gin.Context) (string, bool) {
	account := c.GetHeader(accountHeader)
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + accountHeader + " header"})
		return "", false
	}
	return account, true
}

func (s *Server) grantRole(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req struct {
		Role    string `json:"role" binding:"required"`
		Account string `json:"account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := roles.Parse(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.svc.GrantRole(c.Request.Context(), caller, role, req.Account); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "account": req.Account, "granted": true})
}

func (s *Server) revokeRole(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req struct {
		Role    string `json:"role" binding:"required"`
		Account string `json:"account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := roles.Parse(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.svc.RevokeRole(c.Request.Context(), caller, role, req.Account); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "account": req.Account, "granted": false})
}

func (s *Server) hasRole(c *gin.Context) {
	role, err := roles.Parse(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"role":    role,
		"account": c.Param("account"),
		"has":     s.svc.HasRole(role, c.Param("account")),
	})
}

func (s *Server) publishAd(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req struct {
		AdID                string          `json:"ad_id" binding:"required"`
		Creator             string          `json:"creator" binding:"required"`
		CreatorSharePercent uint32          `json:"creator_share_percent"`
		MinimumBidPrice     decimal.Decimal `json:"minimum_bid_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := s.svc.PublishAd(c.Request.Context(), caller, req.AdID, req.Creator, req.CreatorSharePercent, req.MinimumBidPrice)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (s *Server) getAd(c *gin.Context) {
	slot, err := s.svc.GetAd(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// getAdTag renders a VAST tag for the slot. Creative geometry comes from
// query parameters; the tag is priced off the standing highest bid.
func (s *Server) getAdTag(c *gin.Context) {
	slot, err := s.svc.GetAd(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	doc, err := vast.BuildForSlot(slot, vast.Params{
		MediaURL:        c.Query("media"),
		MimeType:        c.Query("type"),
		Width:           intQuery(c, "w"),
		Height:          intQuery(c, "h"),
		DurationSec:     intQuery(c, "dur"),
		ImpressionURL:   c.Query("imp"),
		ClickThroughURL: c.Query("click"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := doc.Marshal()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/xml", data)
}

func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}

func (s *Server) placeBid(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req struct {
		Payment decimal.Decimal `json:"payment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := s.svc.PlaceBid(c.Request.Context(), caller, c.Param("id"), req.Payment)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (s *Server) settleAd(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	receipt, err := s.svc.Settle(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) withdraw(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	receipt, err := s.svc.Withdraw(c.Request.Context(), caller)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) getBalance(c *gin.Context) {
	account := c.Param("account")
	c.JSON(http.StatusOK, gin.H{
		"account": account,
		"balance": s.svc.Balance(account),
	})
}

func (s *Server) getAnalytics(c *gin.Context) {
	if s.tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "analytics disabled"})
		return
	}
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) getAccountAnalytics(c *gin.Context) {
	if s.tracker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "analytics disabled"})
		return
	}
	c.JSON(http.StatusOK, s.tracker.AccountSnapshot(c.Param("account")))
}

// rtbBid accepts an OpenRTB bid response and maps its first seat bid onto
// a ledger bid. The seat must match the caller identity header.
func (s *Server) rtbBid(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var resp openrtb2.BidResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := rtb.SubmissionFromResponse(&resp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if sub.Bidder != caller {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("seat %s does not match caller account %s", sub.Bidder, caller),
		})
		return
	}

	slot, err := s.svc.PlaceBid(c.Request.Context(), sub.Bidder, sub.AdID, sub.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// streamEvents upgrades to a websocket and forwards ledger events until
// the client goes away
func (s *Server) streamEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.svc.Bus().Subscribe(64)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, roles.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auction.ErrAdNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrDuplicateAd),
		errors.Is(err, auction.ErrAlreadySettled),
		errors.Is(err, auction.ErrNoBids),
		errors.Is(err, auction.ErrStaleBid),
		errors.Is(err, settlement.ErrNothingToWithdraw):
		return http.StatusConflict
	case errors.Is(err, auction.ErrInvalidShare),
		errors.Is(err, auction.ErrNegativePrice),
		errors.Is(err, roles.ErrUnknownRole):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
