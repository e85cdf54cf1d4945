package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manoloenriquez/vault7641/internal/compositor"
	"github.com/manoloenriquez/vault7641/internal/token"
	"github.com/manoloenriquez/vault7641/internal/traits"
)

// FrameCache is satisfied by rendercache.Store. Decoupled here so handler
// tests can run without Redis; nil disables frame caching entirely.
type FrameCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, frame []byte)
}

// FrameKey builds the cache key for one render.
type FrameKey func(instanceID uint64, guild traits.Guild, gender traits.Gender, seed uint64) string

// GenerateHandler serves the authorized generation endpoints: the
// composited frame and the trait list for one collectible instance.
type GenerateHandler struct {
	verifier *token.Verifier
	resolver *traits.Resolver
	comp     *compositor.Compositor
	frames   FrameCache
	frameKey FrameKey
	slots    chan struct{}
	log      *zap.Logger
}

func NewGenerateHandler(
	verifier *token.Verifier,
	resolver *traits.Resolver,
	comp *compositor.Compositor,
	frames FrameCache,
	frameKey FrameKey,
	renderConcurrency int,
	log *zap.Logger,
) *GenerateHandler {
	return &GenerateHandler{
		verifier: verifier,
		resolver: resolver,
		comp:     comp,
		frames:   frames,
		frameKey: frameKey,
		slots:    make(chan struct{}, renderConcurrency),
		log:      log,
	}
}

// Register mounts the generation routes. Both endpoints take the mint
// pass as ?token=...&signature=... query parameters.
func (h *GenerateHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/instance/:id/image", h.handleImage)
	rg.GET("/instance/:id/traits", h.handleTraits)
}

// ── Image ────────────────────────────────────────────────────────────────────

func (h *GenerateHandler) handleImage(c *gin.Context) {
	p, ok := h.authorize(c, token.PurposeImage)
	if !ok {
		return
	}

	key := h.frameKey(p.InstanceID, p.Guild, p.Gender, p.Seed)
	if h.frames != nil {
		if frame, hit := h.frames.Get(c.Request.Context(), key); hit {
			h.writeFrame(c, frame)
			return
		}
	}

	// Rendering is the only CPU-bound step; bound it. Waiters queue on
	// the request context rather than being rejected outright.
	select {
	case h.slots <- struct{}{}:
	case <-c.Request.Context().Done():
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "render queue timeout"})
		return
	}
	defer func() { <-h.slots }()

	frame, err := h.comp.Render(p.InstanceID, p.Guild, p.Gender, p.Seed)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if h.frames != nil {
		h.frames.Put(c.Request.Context(), key, frame)
	}
	h.writeFrame(c, frame)
}

// writeFrame serves the frame with a no-store directive: correctness
// depends on serving the current render of current inputs, never an
// intermediary's copy.
func (h *GenerateHandler) writeFrame(c *gin.Context, frame []byte) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", frame)
}

// ── Traits ───────────────────────────────────────────────────────────────────

func (h *GenerateHandler) handleTraits(c *gin.Context) {
	p, ok := h.authorize(c, token.PurposeTraits)
	if !ok {
		return
	}

	attrs, err := h.resolver.Resolve(p.InstanceID, p.Guild, p.Gender, p.Seed)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instance_id":        p.InstanceID,
		"derivation_version": traits.DerivationVersion,
		"attributes":         attrs,
	})
}

// ── Authorization ────────────────────────────────────────────────────────────

// authorize runs the shared admission pipeline: path parsing, mint-pass
// verification, and the request-context checks the verifier deliberately
// leaves to its caller (purpose and instance binding). On failure it
// writes the response and reports !ok.
func (h *GenerateHandler) authorize(c *gin.Context, want token.Purpose) (token.Payload, bool) {
	instanceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid instance id", "reason": "invalid_instance"})
		return token.Payload{}, false
	}

	tok := c.Query("token")
	sig := c.Query("signature")
	if tok == "" || sig == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token or signature", "reason": "missing_credentials"})
		return token.Payload{}, false
	}

	p, err := h.verifier.Verify(tok, sig)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrMalformedToken):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed token", "reason": "malformed_token"})
		return token.Payload{}, false
	case errors.Is(err, token.ErrExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired", "reason": "token_expired"})
		return token.Payload{}, false
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "reason": "invalid_signature"})
		return token.Payload{}, false
	}

	if p.Purpose != want {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token purpose mismatch", "reason": "purpose_mismatch"})
		return token.Payload{}, false
	}
	if p.InstanceID != instanceID {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token bound to another instance", "reason": "instance_mismatch"})
		return token.Payload{}, false
	}
	return p, true
}

// renderError maps resolver/compositor failures onto the error taxonomy.
// Configuration defects (empty bucket, missing asset) are logged with a
// marker field: they indicate broken deployment data, not a transient
// condition, and need to stand out from ordinary request noise.
func (h *GenerateHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, traits.ErrUnknownGuild), errors.Is(err, traits.ErrUnknownGender):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "reason": "invalid_payload"})
	case errors.Is(err, traits.ErrEmptyBucket), errors.Is(err, compositor.ErrMissingAsset):
		h.log.Error("generation configuration defect",
			zap.Bool("config_error", true),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "generation failed", "reason": "configuration_error"})
	default:
		h.log.Error("render failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "generation failed", "reason": "render_error"})
	}
}
