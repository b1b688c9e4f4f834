package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fadilmartias/introeval-web/internal/config"
	"github.com/fadilmartias/introeval-web/internal/domain/fiber/handler"
	"github.com/fadilmartias/introeval-web/internal/middleware"
	"github.com/fadilmartias/introeval-web/internal/model"
	"github.com/fadilmartias/introeval-web/internal/repository"
	"github.com/fadilmartias/introeval-web/internal/service"
	"github.com/fadilmartias/introeval-web/internal/usecase"
	"github.com/fadilmartias/introeval-web/internal/usecase/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()
	backendConfig := config.LoadBackendConfig()
	if err := backendConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		AppName:   appConfig.Name,
		BodyLimit: appConfig.MaxUploadMB * 1024 * 1024,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			// Status code defaults to 500
			code := fiber.StatusInternalServerError

			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}

			return ctx.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: appConfig.CORSOrigins,
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !appConfig.Production(),
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		// event streams must reach the browser unbuffered
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/session/events"
		},
	}))
	app.Use(pprof.New(pprof.Config{
		Next: func(c *fiber.Ctx) bool {
			return appConfig.Production()
		},
	}))
	app.Use(healthcheck.New())
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.RateLimiter(120, 1*time.Minute))
	app.Use(middleware.Session(appConfig.Production()))

	queue := service.NewQueueService(backendConfig)
	sessions := usecase.NewSessionManager(usecase.SessionDeps{
		Queue:     queue,
		Source:    transport.NewSource(backendConfig, queue),
		States:    stateRepository(),
		Displayed: displayedRepository(),
		Config:    backendConfig,
	})

	sessionHandler := handler.NewSessionHandler(sessions, appConfig.SSEHeartbeat)
	sessionHandler.RegisterRoutes(app)
	handler.NewAnalyticsHandler(usecase.NewAnalyticsUsecase(queue)).RegisterRoutes(app)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.EvictIdle(ctx, appConfig.SessionIdleTimeout)
				log.Printf("Active sessions: %d, goroutines: %d", sessions.Len(), runtime.NumGoroutine())
			}
		}
	}()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		sessionHandler.Close()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Println("Server running on ", appConfig.Port)
	if err := app.Listen(appConfig.Port); err != nil {
		log.Fatal(err)
	}
	sessions.Close()
}

// stateRepository stores client state in postgres when a database is
// configured and in memory otherwise.
func stateRepository() repository.StateRepository {
	dbConfig := config.LoadDBConfig()
	if !dbConfig.Enabled() {
		log.Println("DB_HOST not set, keeping client state in memory")
		return repository.NewMemoryStateRepository()
	}
	return repository.NewClientStateRepository(ConnectDB(dbConfig))
}

func displayedRepository() repository.DisplayedTaskRepository {
	redisConfig := config.LoadRedisConfig()
	if redisConfig.Addr == "" {
		return repository.NewMemoryDisplayedTaskRepository()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}
	return repository.NewRedisDisplayedTaskRepository(rdb, 0)
}

func ConnectDB(dbConfig *config.DBConfig) *gorm.DB {
	appConfig := config.LoadAppConfig()

	db, err := gorm.Open(postgres.Open(dbConfig.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	pgDB, err := db.DB()
	if err != nil {
		log.Fatalf("Could not get database instance: %v", err)
	}
	if !appConfig.Production() {
		pgDB.SetMaxIdleConns(5)
		pgDB.SetMaxOpenConns(10)
		pgDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		pgDB.SetMaxIdleConns(20)
		pgDB.SetMaxOpenConns(100)
		pgDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&model.ClientState{}); err != nil {
		log.Fatal("migration failed: ", err)
	}
	return db
}
