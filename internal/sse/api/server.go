package api

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	sophcrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/diana"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/janus"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/keys"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sophos"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/tokentree"
	"github.com/OpenSSE/opensse-schemes-sub000/pkg/models"
)

// Handler dispatches the three schemes' setup/update/search RPCs over one
// gin router. Exactly one of sophosServer/dianaServer/janusServer is
// non-nil, selected by the running scheme (SSE_SCHEME at process start).
// dir is the server's own state directory, used to persist key material
// a setup call hands it.
type Handler struct {
	scheme       string
	dir          string
	sophosServer *sophos.Server
	dianaServer  *diana.Server
	janusServer  *janus.Server
	hub          *Hub
}

// NewSophosHandler builds a Handler serving the Sophos scheme, persisting
// setup-time key material under dir.
func NewSophosHandler(dir string, s *sophos.Server, hub *Hub) *Handler {
	return &Handler{scheme: "sophos", dir: dir, sophosServer: s, hub: hub}
}

// NewDianaHandler builds a Handler serving the Diana scheme.
func NewDianaHandler(dir string, s *diana.Server, hub *Hub) *Handler {
	return &Handler{scheme: "diana", dir: dir, dianaServer: s, hub: hub}
}

// NewJanusHandler builds a Handler serving the Janus scheme.
func NewJanusHandler(dir string, s *janus.Server, hub *Hub) *Handler {
	return &Handler{scheme: "janus", dir: dir, janusServer: s, hub: hub}
}

// SetupRouter wires the CORS/auth/rate-limit middleware chain and routes:
// a public group (health, websocket stream) and a protected group
// (setup/update/search) gated by AuthMiddleware and rate-limited per IP.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("SSE_ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", h.hub.Subscribe)
	}

	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	protected.Use(NewRateLimiter(120, 20).Middleware())
	{
		protected.POST("/setup", h.handleSetup)
		protected.POST("/update", h.handleUpdate)
		protected.POST("/bulk-update", h.handleBulkUpdate)
		protected.POST("/search", h.handleSearch)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scheme": h.scheme})
}

func (h *Handler) handleSetup(c *gin.Context) {
	switch h.scheme {
	case "sophos":
		var req models.SophosSetupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pk, err := sophcrypto.UnmarshalTDPPublicKey(req.PublicKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := keys.SetupSophosServer(h.dir, pk); err != nil {
			if errors.Is(err, sseerr.ErrInvalidStateTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.sophosServer = sophos.NewServer(h.sophosServer.E, pk)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		// Diana and Janus servers carry no asymmetric setup material over
		// the wire — their server-side state is just the store, already
		// constructed at process start.
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h *Handler) handleUpdate(c *gin.Context) {
	switch h.scheme {
	case "sophos":
		var req models.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg := sophos.UpdateMessage{}
		copy(msg.U[:], req.UpdateToken)
		copy(msg.E[:], req.Index)
		if err := h.sophosServer.Put(msg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case "diana":
		var req models.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg := diana.UpdateMessage{}
		copy(msg.U[:], req.UpdateToken)
		copy(msg.E[:], req.Index)
		if err := h.dianaServer.Put(msg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case "janus":
		h.handleJanusUpdate(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleJanusUpdate dispatches a Janus update to the insertion or
// deletion index: Janus tracks additions and deletions as two independent
// per-keyword streams, so the request's kind query parameter ("insert" or
// "delete") says which one this message targets.
func (h *Handler) handleJanusUpdate(c *gin.Context) {
	kind := c.Query("kind")
	var req models.JanusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw := diana.RawMessage{E: req.Payload}
	copy(raw.U[:], req.UpdateToken)

	switch kind {
	case "insert":
		if err := h.janusServer.PutInsertion(janus.InsertionMessage{Raw: raw}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	case "delete":
		if err := h.janusServer.PutDeletion(janus.DeletionMessage{Raw: raw}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.janusServer.InvalidateCache(req.Keyword)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be insert or delete"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleBulkUpdate accepts a batch of updates for the active scheme and
// acks once every message in the batch has been stored. gin has no
// native client-streaming HTTP primitive, so the batch arrives as one
// JSON array instead of a sequence of frames.
func (h *Handler) handleBulkUpdate(c *gin.Context) {
	switch h.scheme {
	case "sophos":
		var reqs []models.UpdateRequest
		if err := c.ShouldBindJSON(&reqs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, r := range reqs {
			msg := sophos.UpdateMessage{}
			copy(msg.U[:], r.UpdateToken)
			copy(msg.E[:], r.Index)
			if err := h.sophosServer.Put(msg); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
	case "diana":
		var reqs []models.UpdateRequest
		if err := c.ShouldBindJSON(&reqs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, r := range reqs {
			msg := diana.UpdateMessage{}
			copy(msg.U[:], r.UpdateToken)
			copy(msg.E[:], r.Index)
			if err := h.dianaServer.Put(msg); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
	case "janus":
		c.JSON(http.StatusBadRequest, gin.H{"error": "bulk update not supported for janus: insertions and deletions cannot share one ordering guarantee"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func coveringFromWire(nodes []models.CoveringNode) []tokentree.Node {
	out := make([]tokentree.Node, len(nodes))
	for i, n := range nodes {
		var key [32]byte
		copy(key[:], n.Token)
		out[i] = tokentree.Node{Key: key, Depth: n.Depth}
	}
	return out
}

func (h *Handler) handleSearch(c *gin.Context) {
	switch h.scheme {
	case "sophos":
		h.handleSophosSearch(c)
	case "diana":
		h.handleDianaSearch(c)
	case "janus":
		h.handleJanusSearch(c)
	}
}

func (h *Handler) handleSophosSearch(c *gin.Context) {
	var wire models.SophosSearchRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req sophos.SearchRequest
	// search_token carries the TDP chain's top element; derivation_key
	// carries the per-keyword PRF key K_w, a 32-byte PRF output.
	copy(req.STop[:], wire.SearchToken)
	copy(req.Kw[:], wire.DerivationKey)
	req.AddCount = wire.AddCount

	missing := 0
	onMissing := func(err error) { missing++ }

	if wire.Session != "" {
		h.sophosServer.Search(req, func(ix uint64) {
			h.hub.SendPosting(wire.Session, ix)
		}, onMissing)
		h.hub.SendDone(wire.Session, missing)
		c.JSON(http.StatusOK, gin.H{"status": "streamed"})
		return
	}

	var postings []uint64
	h.sophosServer.Search(req, func(ix uint64) {
		postings = append(postings, ix)
	}, onMissing)
	c.JSON(http.StatusOK, models.SearchReply{Postings: postings, Missing: missing})
}

func (h *Handler) handleDianaSearch(c *gin.Context) {
	var wire models.DianaSearchRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := diana.SearchRequest{
		Covering: coveringFromWire(wire.Covering),
		AddCount: wire.AddCount,
	}
	copy(req.KwToken[:], wire.KwToken)

	missing := 0
	onMissing := func(err error) { missing++ }

	if wire.Session != "" {
		h.dianaServer.Search(req, func(ix uint64) {
			h.hub.SendPosting(wire.Session, ix)
		}, onMissing)
		h.hub.SendDone(wire.Session, missing)
		c.JSON(http.StatusOK, gin.H{"status": "streamed"})
		return
	}

	var postings []uint64
	h.dianaServer.Search(req, func(ix uint64) {
		postings = append(postings, ix)
	}, onMissing)
	c.JSON(http.StatusOK, models.SearchReply{Postings: postings, Missing: missing})
}

func (h *Handler) handleJanusSearch(c *gin.Context) {
	var wire models.JanusSearchRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := janus.SearchRequest{
		Add: diana.SearchRequest{
			Covering: coveringFromWire(wire.Add.Covering),
			AddCount: wire.Add.AddCount,
		},
		Del: diana.SearchRequest{
			Covering: coveringFromWire(wire.Del.Covering),
			AddCount: wire.Del.AddCount,
		},
		DelFound: wire.DelFound,
	}
	copy(req.Add.KwToken[:], wire.Add.KwToken)
	copy(req.Del.KwToken[:], wire.Del.KwToken)
	copy(req.FirstShare[:], wire.FirstShare)

	missing := 0
	onMissing := func(err error) { missing++ }

	if wire.Session != "" {
		h.janusServer.Search(wire.Keyword, req, func(ix uint64) {
			h.hub.SendPosting(wire.Session, ix)
		}, onMissing)
		h.hub.SendDone(wire.Session, missing)
		c.JSON(http.StatusOK, gin.H{"status": "streamed"})
		return
	}

	var postings []uint64
	h.janusServer.Search(wire.Keyword, req, func(ix uint64) {
		postings = append(postings, ix)
	}, onMissing)
	c.JSON(http.StatusOK, models.SearchReply{Postings: postings, Missing: missing})
}
