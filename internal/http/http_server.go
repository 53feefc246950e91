package http

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/game"
	"github.com/flipverse/coinflip-agent/internal/lifecycle"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/recovery"
	"github.com/flipverse/coinflip-agent/internal/state"
	"github.com/flipverse/coinflip-agent/internal/wallet"
)

type HTTPServer interface {
	StartHTTPServer()
}

// HTTPServerImpl is the presentation boundary: a thin JSON surface over the
// engines. It never talks to the chain itself except through the controller
// and advisor.
type HTTPServerImpl struct {
	st         *state.State
	controller *lifecycle.Controller
	advisor    *recovery.Advisor
	notifier   *notify.Router
	sessions   *wallet.Manager
	health     *chain.HealthMonitor

	// gateway returns the current chain gateway; it changes on account and
	// chain switches so handlers resolve it per request.
	gateway func() chain.Gateway
}

func NewHTTPServer(st *state.State, controller *lifecycle.Controller, advisor *recovery.Advisor,
	notifier *notify.Router, sessions *wallet.Manager, health *chain.HealthMonitor,
	gateway func() chain.Gateway) *HTTPServerImpl {
	return &HTTPServerImpl{
		st:         st,
		controller: controller,
		advisor:    advisor,
		notifier:   notifier,
		sessions:   sessions,
		health:     health,
		gateway:    gateway,
	}
}

func (hs *HTTPServerImpl) StartHTTPServer() {
	r := gin.Default()

	api := r.Group("/api/v1")
	if config.AppConfig.APIJwtSecret != "" {
		api.Use(AuthMiddleware(config.AppConfig.APIJwtSecret))
	}

	api.GET("/view", hs.handleView)
	api.GET("/health", hs.handleHealth)
	api.GET("/notifications", hs.handleNotifications)
	api.DELETE("/notifications", hs.handleClearNotifications)
	api.DELETE("/notifications/:id", hs.handleDismissNotification)
	api.POST("/approve", hs.handleApprove)
	api.POST("/bet", hs.handleBet)
	api.GET("/recovery", hs.handleRecoveryStatus)
	api.POST("/recover", hs.handleRecover)
	api.GET("/onboarding", hs.handleOnboardingStatus)
	api.PUT("/onboarding", hs.handleCompleteOnboarding)
	api.GET("/session", hs.handleSession)
	api.POST("/account", hs.handleSwitchAccount)

	addr := ":" + config.AppConfig.HTTPPort
	log.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}

func (hs *HTTPServerImpl) handleView(c *gin.Context) {
	view := hs.st.GetMergedView()
	balance, allowance, fundsAt := hs.st.GetFunds()
	c.JSON(http.StatusOK, gin.H{
		"view":      view,
		"operation": hs.controller.Status(),
		"funds": gin.H{
			"balance":    bigString(balance),
			"allowance":  bigString(allowance),
			"updated_at": fundsAt,
		},
	})
}

func (hs *HTTPServerImpl) handleHealth(c *gin.Context) {
	_, chainID := hs.st.Account()
	resp := gin.H{
		"chain_id":  chainID,
		"chain":     chain.ChainName(chainID),
		"supported": chain.IsSupportedChain(chainID),
	}
	if hs.health != nil {
		resp["rpc"] = hs.health.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func (hs *HTTPServerImpl) handleNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": hs.notifier.List()})
}

func (hs *HTTPServerImpl) handleClearNotifications(c *gin.Context) {
	hs.notifier.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (hs *HTTPServerImpl) handleDismissNotification(c *gin.Context) {
	if !hs.notifier.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (hs *HTTPServerImpl) handleApprove(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if err := hs.controller.Approve(c.Request.Context(), amount); err != nil {
		hs.notifier.PushError(err)
		respondChainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (hs *HTTPServerImpl) handleBet(c *gin.Context) {
	var req BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	side := parseSide(req.Side)
	if !side.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be heads or tails"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if err := hs.controller.PlaceBet(c.Request.Context(), side, amount); err != nil {
		hs.notifier.PushError(err)
		respondChainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "bet_placed", "operation": hs.controller.Status()})
}

func (hs *HTTPServerImpl) handleRecoveryStatus(c *gin.Context) {
	assessment := hs.advisor.Evaluate(hs.st.GetGameStatus(), time.Now())
	c.JSON(http.StatusOK, assessment)
}

func (hs *HTTPServerImpl) handleRecover(c *gin.Context) {
	gw := hs.gateway()
	if gw == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet not connected"})
		return
	}
	if err := hs.advisor.Recover(c.Request.Context(), gw); err != nil {
		respondChainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recovered"})
}

func (hs *HTTPServerImpl) handleOnboardingStatus(c *gin.Context) {
	account, _ := hs.st.Account()
	done, err := hs.sessions.IsOnboarded(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read onboarding state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account.Hex(), "completed": done})
}

func (hs *HTTPServerImpl) handleCompleteOnboarding(c *gin.Context) {
	account, _ := hs.st.Account()
	if err := hs.sessions.CompleteOnboarding(account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save onboarding state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (hs *HTTPServerImpl) handleSession(c *gin.Context) {
	session, err := hs.sessions.FreshSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (hs *HTTPServerImpl) handleSwitchAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !common.IsHexAddress(req.Account) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account address"})
		return
	}
	account := common.HexToAddress(req.Account)
	prevAccount, prevChain := hs.st.Account()

	if req.ChainID != 0 && req.ChainID != prevChain {
		hs.sessions.OnChainChanged(account, req.ChainID)
	}
	if account != prevAccount {
		chainID := req.ChainID
		if chainID == 0 {
			chainID = prevChain
		}
		hs.sessions.OnAccountChanged(account, chainID)
	}
	if req.ProviderType != "" {
		chainID := req.ChainID
		if chainID == 0 {
			chainID = prevChain
		}
		if err := hs.sessions.SaveSession(req.ProviderType, account, chainID); err != nil {
			log.Warnf("Failed to save wallet session: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseSide(s string) game.Side {
	switch s {
	case "heads", "1":
		return game.SideHeads
	case "tails", "2":
		return game.SideTails
	}
	return game.SideNone
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// respondChainError maps the error taxonomy onto HTTP statuses so clients can
// branch without parsing messages.
func respondChainError(c *gin.Context, err error) {
	ce := chain.Classify(err)
	status := http.StatusInternalServerError
	switch ce.Kind {
	case chain.KindOperationInProgress:
		status = http.StatusConflict
	case chain.KindUserRejected, chain.KindUnsupportedNetwork:
		status = http.StatusBadRequest
	case chain.KindInsufficientFunds, chain.KindInsufficientAllowance, chain.KindInsufficientBalance:
		status = http.StatusPaymentRequired
	case chain.KindContractReverted:
		status = http.StatusUnprocessableEntity
	case chain.KindTimeout:
		status = http.StatusGatewayTimeout
	case chain.KindNetworkTransient:
		status = http.StatusBadGateway
	}
	resp := gin.H{"error": ce.Message, "kind": ce.Kind}
	if ce.Reason != "" {
		resp["reason"] = ce.Reason
	}
	c.JSON(status, resp)
}
