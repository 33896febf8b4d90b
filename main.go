package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appconfig "easyearn-backend/config"
	"easyearn-backend/handlers"
	"easyearn-backend/models"
	"easyearn-backend/services"
	"easyearn-backend/utils"
	"easyearn-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := appconfig.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // provider postbacks are tiny
	})

	// CORS is for the user-facing routes; providers call server-to-server.
	allowedOriginsList := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.TaskClaim{},
		&models.Transaction{},
		&models.StreakCaseOpen{},
		&models.Withdrawal{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	postbackService := services.NewPostbackService(db, services.BuildProviders(cfg))
	rewardService := services.NewRewardService(db, cfg)
	withdrawalService := services.NewWithdrawalService(db)

	handlers.SetupPostbackRoutes(app, postbackService)
	handlers.SetupRewardRoutes(app, rewardService, withdrawalService)

	workers.StartReleaseSweeper(db, rewardService, 10*time.Minute)

	if cfg.AuditArchiveEnabled() {
		if err := utils.InitR2(cfg); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		workers.StartAuditExporter(db)
		log.Println("✅ Audit archive exporter running (daily)")
	} else {
		log.Println("⚠️  R2 credentials not set, audit archive exporter disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	for name, p := range postbackService.Providers {
		if len(p.Secrets) == 0 {
			log.Printf("⚠️  %s: no postback secret configured, signature enforcement disabled", name)
		}
	}
	log.Printf("✅ Server running on %s", cfg.ListenAddr)
	log.Println("✅ Pending-hold release sweeper running (every 10m)")

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
