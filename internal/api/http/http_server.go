package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/olyamironova/swap-router/internal/api/dto"
	"github.com/olyamironova/swap-router/internal/core"
	"github.com/olyamironova/swap-router/internal/domain"
	"github.com/olyamironova/swap-router/internal/middleware"
	"github.com/olyamironova/swap-router/internal/port"
)

type Router interface {
	Execute(ctx context.Context, p core.ExecuteParams) (domain.RouteOutcome, error)
	Quote(ctx context.Context, p core.ExecuteParams) (domain.RouteOutcome, error)
}

type HTTPServer struct {
	router  Router
	ledger  port.Ledger
	markets port.MarketRegistry
	cache   port.DepthCache
	limiter *middleware.RateLimiter
	clock   port.Clock
	stream  http.Handler
	logger  *slog.Logger
}

// NewHTTPServer wires the REST surface. cache and limiter may be nil.
func NewHTTPServer(router Router, ledger port.Ledger, markets port.MarketRegistry, cache port.DepthCache, limiter *middleware.RateLimiter, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		router:  router,
		ledger:  ledger,
		markets: markets,
		cache:   cache,
		limiter: limiter,
		logger:  logger.With("component", "http"),
	}
}

// WithClock exposes the current slot at GET /v1/slot so clients can pick
// grant expiries and deadlines.
func (s *HTTPServer) WithClock(clk port.Clock) *HTTPServer {
	s.clock = clk
	return s
}

// WithStream mounts the committed-route websocket at GET /v1/stream/routes.
func (s *HTTPServer) WithStream(h http.Handler) *HTTPServer {
	s.stream = h
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	v1.POST("/swaps", s.executeSwap)
	v1.POST("/swaps/quote", s.quoteSwap)
	v1.GET("/vaults/:address", s.getVault)
	v1.GET("/markets", s.listMarkets)
	v1.GET("/markets/:address", s.getMarket)
	v1.GET("/markets/:address/orderbook", s.getOrderbook)
	if s.stream != nil {
		v1.GET("/stream/routes", gin.WrapH(s.stream))
	}
	if s.clock != nil {
		v1.GET("/slot", func(c *gin.Context) {
			c.JSON(http.StatusOK, dto.SlotResponse{Slot: strconv.FormatUint(s.clock.Slot(), 10)})
		})
	}
	return r
}

func (s *HTTPServer) executeSwap(c *gin.Context) { s.swap(c, false) }

func (s *HTTPServer) quoteSwap(c *gin.Context) { s.swap(c, true) }

func (s *HTTPServer) swap(c *gin.Context, dryRun bool) {
	var req dto.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "InvalidRequest", Message: err.Error()})
		return
	}
	p, err := req.ToParams()
	if err != nil {
		s.fail(c, err)
		return
	}

	var out domain.RouteOutcome
	if dryRun {
		out, err = s.router.Quote(c.Request.Context(), p)
	} else {
		out, err = s.router.Execute(c.Request.Context(), p)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromOutcome(out, dryRun))
}

func (s *HTTPServer) getVault(c *gin.Context) {
	addr, ok := s.address(c)
	if !ok {
		return
	}
	v, err := s.ledger.Vault(c.Request.Context(), addr)
	if err != nil {
		if errors.Is(err, domain.ErrVaultNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "NotFound", Message: err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromVault(v))
}

func (s *HTTPServer) listMarkets(c *gin.Context) {
	markets := s.markets.List()
	res := make([]dto.MarketSummary, 0, len(markets))
	for _, m := range markets {
		res = append(res, dto.MarketSummary{Accounts: dto.FromRef(m.Ref()), Halted: m.Halted()})
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) getMarket(c *gin.Context) {
	m, ok := s.market(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.MarketSummary{Accounts: dto.FromRef(m.Ref()), Halted: m.Halted()})
}

// getOrderbook serves depth through the cache; a committed route
// invalidates the entries of both its markets.
func (s *HTTPServer) getOrderbook(c *gin.Context) {
	m, ok := s.market(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	addr := m.Ref().Market
	if s.cache != nil {
		snap, err := s.cache.GetDepth(ctx, addr)
		if err != nil {
			s.logger.WarnContext(ctx, "depth cache read failed", "market", addr, "error", err)
		}
		if snap != nil {
			c.JSON(http.StatusOK, dto.FromSnapshot(addr.String(), snap))
			return
		}
	}
	snap, err := s.fillDepth(ctx, m)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSnapshot(addr.String(), snap))
}

// fillDepth reads and caches depth under the market lock. Routes invalidate
// while holding the same lock, so a snapshot taken before a route cannot
// land in the cache after that route's invalidation.
func (s *HTTPServer) fillDepth(ctx context.Context, m port.Market) (*domain.OrderbookSnapshot, error) {
	m.Lock()
	defer m.Unlock()
	snap, err := m.Depth(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetDepth(ctx, m.Ref().Market, snap); err != nil {
			s.logger.WarnContext(ctx, "depth cache write failed", "market", m.Ref().Market, "error", err)
		}
	}
	return snap, nil
}

func (s *HTTPServer) address(c *gin.Context) (solana.PublicKey, bool) {
	addr, err := solana.PublicKeyFromBase58(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "InvalidRequest", Message: "invalid address: " + err.Error()})
		return solana.PublicKey{}, false
	}
	return addr, true
}

func (s *HTTPServer) market(c *gin.Context) (port.Market, bool) {
	addr, ok := s.address(c)
	if !ok {
		return nil, false
	}
	m, err := s.markets.Load(c.Request.Context(), addr)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "NotFound", Message: err.Error()})
		return nil, false
	}
	return m, true
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	code := domain.Code(err)
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error()})
}

// StatusFor maps the route error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch domain.Code(err) {
	case "InvalidRequest":
		return http.StatusBadRequest
	case "DeadlineExceeded":
		return http.StatusRequestTimeout
	case "SlippageExceeded":
		return http.StatusConflict
	case "InsufficientLiquidity":
		return http.StatusUnprocessableEntity
	case "MarketUnavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
