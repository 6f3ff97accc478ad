package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/dukerupert/freelancequest/internal/auth"
	"github.com/dukerupert/freelancequest/internal/gamification"
	"github.com/dukerupert/freelancequest/internal/handler"
	"github.com/dukerupert/freelancequest/internal/ingest"
	"github.com/dukerupert/freelancequest/internal/middleware"
	"github.com/dukerupert/freelancequest/internal/notify"
	"github.com/dukerupert/freelancequest/internal/store"
	ws "github.com/dukerupert/freelancequest/internal/websocket"
)

// Options carries the settings the HTTP surface needs.
type Options struct {
	JWTSecret      string
	InternalAPIKey string
	AllowedOrigins []string
	Location       *time.Location
	// WSRateLimit caps WebSocket handshakes per caller per minute.
	WSRateLimit int
	// TrustedProxies may set X-Real-IP and X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

type Server struct {
	hub         *ws.Hub
	verifier    *auth.Verifier
	dispatcher  *notify.Dispatcher
	ingester    *ingest.Ingester
	rateLimiter *middleware.RateLimiter
	ips         *middleware.IPResolver
	opts        Options

	missionH  *handler.MissionHandler
	progressH *handler.ProgressHandler
	profileH  *handler.ProfileHandler
	badgeH    *handler.BadgeHandler
	benefitH  *handler.BenefitHandler
	internalH *handler.InternalHandler

	logger *slog.Logger
}

func New(db *sql.DB, engine *gamification.Engine, bus notify.Bus, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WSRateLimit <= 0 {
		opts.WSRateLimit = 30
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	missionStore := store.NewMissionStore(db)
	progressStore := store.NewProgressStore(db, opts.Location)
	profileStore := store.NewProfileStore(db)
	badgeStore := store.NewBadgeStore(db)
	benefitStore := store.NewBenefitStore(db)
	userStore := store.NewUserStore(db)

	dispatcher := notify.NewDispatcher(bus, progressStore, badgeStore, logger)
	ingester := ingest.NewIngester(
		ingest.Translator{Loc: opts.Location},
		engine,
		dispatcher,
		logger.With("component", "ingest"),
	)
	handlerLogger := logger.With("component", "handler")

	return &Server{
		hub:         hub,
		verifier:    auth.NewVerifier(opts.JWTSecret),
		dispatcher:  dispatcher,
		ingester:    ingester,
		rateLimiter: middleware.NewRateLimiter(),
		ips:         middleware.NewIPResolver(opts.TrustedProxies),
		opts:        opts,

		missionH:  handler.NewMissionHandler(missionStore, handlerLogger),
		progressH: handler.NewProgressHandler(progressStore, dispatcher, handlerLogger),
		profileH:  handler.NewProfileHandler(profileStore, engine.Curve(), handlerLogger),
		badgeH:    handler.NewBadgeHandler(badgeStore, dispatcher, handlerLogger),
		benefitH:  handler.NewBenefitHandler(benefitStore, handlerLogger),
		internalH: handler.NewInternalHandler(ingester, userStore, handlerLogger),

		logger: logger,
	}
}

// Hub is the local socket registry the notification forwarder delivers to.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", handler.Health)

	// The handshake authenticates itself so that it can accept ?token=.
	wsHandler := ws.HandleWebSocket(s.hub, s.verifier, s.opts.AllowedOrigins, s.logger.With("component", "websocket"))
	outerMux.Handle("GET /ws/gamification", s.rateLimited(wsHandler, s.opts.WSRateLimit))

	// Service-to-service routes
	internalMux := http.NewServeMux()
	s.registerInternalRoutes(internalMux)
	outerMux.Handle("/internal/", middleware.RequireAPIKey(s.opts.InternalAPIKey)(internalMux))

	// User routes, wrapped with RequireToken middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/api/", middleware.RequireToken(s.verifier)(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"), s.ips)(outerMux)
}

func (s *Server) rateLimited(h http.Handler, perMinute int) http.Handler {
	return middleware.RateLimit(s.rateLimiter, s.ips.CallerKey, perMinute, time.Minute)(h)
}

func (s *Server) registerInternalRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/events", s.internalH.RecordEvent)
	mux.HandleFunc("POST /internal/actions", s.internalH.RecordAction)
	mux.HandleFunc("PUT /internal/users/{id}", s.internalH.PutUser)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Catalog
	mux.HandleFunc("GET /api/missions", s.missionH.List)

	// Progress and reconciliation
	mux.HandleFunc("GET /api/progress", s.progressH.List)
	mux.HandleFunc("GET /api/progress/recent", s.progressH.Recent)
	mux.HandleFunc("POST /api/progress/{id}/seen", s.progressH.MarkSeen)

	// Profile and leaderboards
	mux.HandleFunc("GET /api/profile", s.profileH.Get)
	mux.HandleFunc("GET /api/leaderboard/{role}", s.profileH.Leaderboard)

	// Badges
	mux.HandleFunc("GET /api/badges", s.badgeH.List)
	mux.HandleFunc("GET /api/badges/recent", s.badgeH.Recent)
	mux.HandleFunc("POST /api/badges/{id}/seen", s.badgeH.MarkSeen)
	mux.HandleFunc("GET /api/user-badges", s.badgeH.UserBadges)

	// Platform benefits
	mux.HandleFunc("GET /api/benefits", s.benefitH.List)
	mux.HandleFunc("GET /api/user-benefits", s.benefitH.UserBenefits)
	mux.HandleFunc("POST /api/benefits/{id}/redeem", s.benefitH.Redeem)
}
