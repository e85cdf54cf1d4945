package server

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manoloenriquez/vault7641/internal/metacache"
)

// WalletHandler exposes the wallet lifecycle hooks and the cached
// collection lookup. The metadata cache itself stays a programmatic
// component; these routes are the thin delivery shim the connect /
// disconnect collaborators call.
type WalletHandler struct {
	cache    *metacache.Cache
	prefetch *metacache.Prefetcher
	source   metacache.FetchSource
	log      *zap.Logger
}

func NewWalletHandler(
	cache *metacache.Cache,
	prefetch *metacache.Prefetcher,
	source metacache.FetchSource,
	log *zap.Logger,
) *WalletHandler {
	return &WalletHandler{cache: cache, prefetch: prefetch, source: source, log: log}
}

func (h *WalletHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/wallet/connect", h.handleConnect)
	rg.POST("/wallet/disconnect", h.handleDisconnect)
	rg.GET("/wallet/collection/:address", h.handleCollection)
	rg.GET("/wallet/cache/stats", h.handleStats)
}

type walletRequest struct {
	Address string `json:"address"`
}

func (h *WalletHandler) bindAddress(c *gin.Context) (common.Address, bool) {
	var req walletRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address", "reason": "invalid_address"})
		return common.Address{}, false
	}
	return common.HexToAddress(req.Address), true
}

// handleConnect starts a background collection prefetch. The fetch
// outlives the request, so it runs on a detached context.
func (h *WalletHandler) handleConnect(c *gin.Context) {
	owner, ok := h.bindAddress(c)
	if !ok {
		return
	}
	h.prefetch.Connect(context.Background(), owner)
	c.JSON(http.StatusAccepted, gin.H{"state": string(h.prefetch.Status(owner).State)})
}

func (h *WalletHandler) handleDisconnect(c *gin.Context) {
	owner, ok := h.bindAddress(c)
	if !ok {
		return
	}
	h.prefetch.Disconnect(owner)
	c.JSON(http.StatusOK, gin.H{"state": string(metacache.StateIdle)})
}

func (h *WalletHandler) handleCollection(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address", "reason": "invalid_address"})
		return
	}
	owner := common.HexToAddress(raw)

	// Concurrent readers of one key share a single fetch; the fetch runs
	// detached from this request's context so one canceled client cannot
	// fail every coalesced waiter.
	ctx := context.WithoutCancel(c.Request.Context())
	v, err := h.cache.GetOrFetch(ctx, metacache.CollectionKey(owner), h.source(owner))
	if err != nil {
		h.log.Warn("collection lookup failed", zap.String("owner", owner.Hex()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "collection lookup failed", "reason": "upstream_error"})
		return
	}
	ids, ok := v.([]uint64)
	if !ok {
		h.log.Error("cached collection has unexpected type",
			zap.String("owner", owner.Hex()),
			zap.String("key", metacache.CollectionKey(owner)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "collection lookup failed", "reason": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":   owner.Hex(),
		"instances": ids,
		"state":     string(h.prefetch.Status(owner).State),
	})
}

func (h *WalletHandler) handleStats(c *gin.Context) {
	s := h.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"entry_count":          s.EntryCount,
		"oldest_entry_age_sec": int64(s.OldestEntryAge.Seconds()),
		"hits":                 s.Hits,
		"misses":               s.Misses,
	})
}
