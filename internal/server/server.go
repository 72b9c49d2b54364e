package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/engine"
	"github.com/Atharva-Mendhulkar/AVARA/internal/handler"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra/auth"
)

// Server — HTTP-поверхность движка. Внешние CLI/демо/адаптеры ходят только
// сюда (плюс читают durable-таблицы read-only), решений сами не принимают.
type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// nil — движок работает без операторской аутентификации (dev/demo)
	authValidator auth.TokenValidator

	iamHandler      *handler.IAMHandler
	guardHandler    *handler.GuardHandler
	approvalHandler *handler.ApprovalHandler
	auditHandler    *handler.AuditHandler
	authHandler     *handler.AuthHandler // nil, если ключи не сконфигурированы
	metricsHandler  http.Handler
}

func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	authValidator auth.TokenValidator,
	iamH *handler.IAMHandler,
	guardH *handler.GuardHandler,
	approvalH *handler.ApprovalHandler,
	auditH *handler.AuditHandler,
	authH *handler.AuthHandler,
	metricsH http.Handler,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("http"),
		cfg:             cfg,
		authValidator:   authValidator,
		iamHandler:      iamH,
		guardHandler:    guardH,
		approvalHandler: approvalH,
		auditHandler:    auditH,
		authHandler:     authH,
		metricsHandler:  metricsH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)

	// --- 2. Публичные роуты ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status": "ok"}`))
		})

		if s.metricsHandler != nil {
			r.Handle("/metrics", s.metricsHandler)
		}

		if s.authHandler != nil {
			r.Post("/auth/token", s.authHandler.Login)
		}
	})

	// --- 3. IAM: жизненный цикл identity ---
	r.Route("/iam", func(r chi.Router) {
		r.Post("/provision", s.iamHandler.Provision)
		r.Delete("/revoke/{agentID}", s.iamHandler.Revoke)
		r.Get("/agents", s.iamHandler.List)
	})

	// --- 4. Guard: ядро принятия решений ---
	r.Route("/guard", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(engine.RateLimitMiddleware(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst))
			r.Post("/validate_action", s.guardHandler.ValidateAction)
		})

		r.Post("/prepare_context", s.guardHandler.PrepareContext)

		r.Route("/approvals", func(r chi.Router) {
			// Чтение статуса открыто: агент поллит исход своего тикета
			r.Get("/", s.approvalHandler.List)
			r.Get("/{actionID}", s.approvalHandler.GetDetails)
			r.Get("/{actionID}/status", s.approvalHandler.Status)

			// Резолюция — только человек; закрыта токеном, когда он настроен
			r.Group(func(r chi.Router) {
				if s.authValidator != nil {
					r.Use(auth.NewMiddleware(s.authValidator, s.logger))
				}
				r.Post("/{actionID}/approve", s.approvalHandler.Approve)
				r.Post("/{actionID}/deny", s.approvalHandler.Deny)
			})
		})
	})

	// --- 5. Аудит (операторская инспекция) ---
	r.Get("/v1/audit", s.auditHandler.Tail)
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
