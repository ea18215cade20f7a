package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/signup-api/internal/config"
	"github.com/yourusername/signup-api/internal/handler"
	"github.com/yourusername/signup-api/internal/middleware"
	pgRepo "github.com/yourusername/signup-api/internal/repository/postgres"
	"github.com/yourusername/signup-api/internal/service"
	"github.com/yourusername/signup-api/pkg/auth"
	"github.com/yourusername/signup-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis (периметровый rate limiting)
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	otpRepo := pgRepo.NewOTPRepo(db)
	rateLimitRepo := pgRepo.NewRateLimitRepo(db)

	// Per-email limiter поверх общей таблицы; лимиты на действие — статическая таблица
	rateLimiter, err := service.NewPersistentRateLimiter(rateLimitRepo, service.DefaultRateLimitPolicies())
	if err != nil {
		log.Printf("Failed to initialize RateLimiter: %v", err)
		os.Exit(1)
	}

	// Доставка писем: Resend или noop, если отключено
	var emailService service.EmailService
	if cfg.Email.Enabled {
		emailService, err = service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			log.Printf("Failed to initialize EmailService: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("Email delivery disabled, using noop sender")
		emailService = &service.NoopEmailService{}
	}

	accountService, err := service.NewAccountService(userRepo, rateLimiter)
	if err != nil {
		log.Printf("Failed to initialize AccountService: %v", err)
		os.Exit(1)
	}

	otpService, err := service.NewOTPService(
		otpRepo,
		rateLimiter,
		accountService,
		emailService,
		cfg.OTP.CodeTTL,
		cfg.OTP.MaxAttempts,
		cfg.OTP.BlockDuration,
		cfg.OTP.ResendCooldown,
		cfg.OTP.SendTimeout,
	)
	if err != nil {
		log.Printf("Failed to initialize OTPService: %v", err)
		os.Exit(1)
	}

	tokenService, err := auth.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpirationHrs)*time.Hour)
	if err != nil {
		log.Printf("Failed to initialize TokenService: %v", err)
		os.Exit(1)
	}

	cleanupService, err := service.NewCleanupService(otpRepo, rateLimitRepo, cfg.OTP.Retention, rateLimiter.MaxWindow())
	if err != nil {
		log.Printf("Failed to initialize CleanupService: %v", err)
		os.Exit(1)
	}

	// Контекст с отменой для корректного завершения фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Периодическая очистка истекших OTP-кодов и rate-limit записей
	go cleanupService.Run(ctx, cfg.OTP.CleanupInterval)

	// Инициализируем обработчики
	signupHandler := handler.NewSignupHandler(otpService, accountService, tokenService)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode
	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		// Production: не доверять прокси-заголовкам (защита от IP spoofing).
		// При деплое за load balancer добавьте его IP вместо nil.
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Периметровый per-IP лимитер поверх доменных лимитов
	perimeterLimiter := middleware.NewRateLimiter(redisClient)

	api := router.Group("/api")
	api.Use(perimeterLimiter.LimitByIP(middleware.DefaultAPIRateLimitConfig()))
	{
		strict := middleware.StrictAuthRateLimitConfig()
		api.POST("/signup", perimeterLimiter.Limit(strict), signupHandler.Signup)
		api.POST("/login", perimeterLimiter.Limit(strict), signupHandler.Login)
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем фоновые горутины
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing redis client: %v", err)
	}

	log.Println("Server exited properly")
}
