package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Atharva-Mendhulkar/AVARA/internal/anomaly"
	"github.com/Atharva-Mendhulkar/AVARA/internal/audit"
	"github.com/Atharva-Mendhulkar/AVARA/internal/breaker"
	"github.com/Atharva-Mendhulkar/AVARA/internal/contextgov"
	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
	"github.com/Atharva-Mendhulkar/AVARA/internal/engine"
	"github.com/Atharva-Mendhulkar/AVARA/internal/handler"
	"github.com/Atharva-Mendhulkar/AVARA/internal/identity"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra/auth"
	"github.com/Atharva-Mendhulkar/AVARA/internal/intent"
	"github.com/Atharva-Mendhulkar/AVARA/internal/provenance"
	"github.com/Atharva-Mendhulkar/AVARA/internal/repository/postgres"
	"github.com/Atharva-Mendhulkar/AVARA/internal/server"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин: SIGTERM гасит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.InitSchema(appCtx); err != nil {
		logger.Fatal("failed to init schema", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			// Redis не критичен: без него движок работает на одном инстансе
			logger.Warn("redis unavailable, cross-instance signals disabled", zap.Error(err))
			rdb = nil
		}
	}

	// 3. Audit Ledger: продолжаем хэш-цепочку с места рестарта
	startSeq, startHash, err := repo.LastChainState(appCtx)
	if err != nil {
		logger.Fatal("failed to read audit chain state", zap.Error(err))
	}

	reliableStorage := audit.NewReliableStorage(repo, cfg.Guard.StorageCBTimeout, cfg.Guard.StorageCBFailures)
	ledger := audit.NewLedger(reliableStorage, startSeq, startHash, cfg.Guard.AuditBufferSize, logger)
	ledger.Start(cfg.Guard.AuditFlushInterval)

	// 4. Ядро движка
	store := identity.NewStore(repo, rdb, logger)
	store.AttachLedger(ledger)
	if err := store.WarmUp(appCtx); err != nil {
		logger.Fatal("failed to warm up identity store", zap.Error(err))
	}
	go store.StartRevocationListener(appCtx)

	detector := anomaly.NewDetector(cfg.Guard.AnomalyWindow, cfg.Guard.AnomalyThreshold, store, logger)
	// Отзыв identity (любым путем) чистит окно аномалий этого агента
	store.OnRevoke(detector.Forget)

	validator := intent.NewValidator(intent.NewRiskTable(cfg.Guard.RiskOverrides))
	firewall := provenance.NewFirewall()
	governor := contextgov.NewGovernor(cfg.Guard.TruncateOverflow)

	brk := breaker.New(repo, rdb, cfg.Guard.ApprovalAutoDenyAfter, logger)
	brk.AttachLedger(ledger)
	if err := brk.WarmUp(appCtx); err != nil {
		logger.Fatal("failed to warm up approval breaker", zap.Error(err))
	}
	go brk.StartJanitor(appCtx)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	orch := engine.NewOrchestrator(store, detector, validator, firewall, governor, brk, ledger, metrics, logger)

	// 5. Операторская аутентификация (опциональна: без ключей — открытый режим)
	var tokenValidator auth.TokenValidator
	var authHandler *handler.AuthHandler

	if len(cfg.Auth.PublicKey) > 0 {
		pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("failed to parse auth public key", zap.Error(err))
		}
		tokenValidator = auth.NewBaseValidator(pubKey)

		if len(cfg.Auth.PrivateKey) > 0 {
			privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
			if err != nil {
				logger.Fatal("failed to parse auth private key", zap.Error(err))
			}
			issuer := auth.NewIssuer(repo, privKey, cfg.Auth.TokenTTL)
			authHandler = handler.NewAuthHandler(issuer)

			if err := bootstrapOperator(appCtx, repo, cfg.Auth.BcryptCost, logger); err != nil {
				logger.Fatal("failed to bootstrap operator", zap.Error(err))
			}
		}
	} else {
		logger.Warn("auth keys not configured, approval endpoints are open")
	}

	// 6. HTTP Server
	srvHandler := server.NewServer(
		cfg,
		logger,
		tokenValidator,
		handler.NewIAMHandler(store, cfg.Guard.DefaultTTLSeconds, logger),
		handler.NewGuardHandler(orch, logger),
		handler.NewApprovalHandler(brk, logger),
		handler.NewAuditHandler(ledger, repo, logger),
		authHandler,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("AVARA engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("AVARA engine stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()      // гасим фоновые слушатели
	ledger.Stop() // дожимаем буфер аудита в Postgres
	logger.Info("AVARA engine exited properly")
}

// bootstrapOperator создает стартового оператора из ENV, чтобы было кому
// выдать первый токен. Молча пропускается, если переменные не заданы.
func bootstrapOperator(ctx context.Context, repo *postgres.Repo, bcryptCost int, logger *zap.Logger) error {
	username := os.Getenv("OPERATOR_USERNAME")
	password := os.Getenv("OPERATOR_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("bcrypt hash failed: %w", err)
	}

	op := &domain.Operator{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         "operator",
	}
	if err := repo.EnsureOperator(ctx, op); err != nil {
		return err
	}
	logger.Info("bootstrap operator ensured", zap.String("username", username))
	return nil
}
