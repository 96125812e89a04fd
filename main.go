package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pack-battle-system/handlers"
	"pack-battle-system/middleware"
	"pack-battle-system/models"
	"pack-battle-system/services"
	"pack-battle-system/utils"
	"pack-battle-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New()

	// All traffic must come through the gateway.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Box{},
		&models.BoxCard{},
		&models.BoxSealedProduct{},
		&models.Battle{},
		&models.Participant{},
		&models.Pull{},
		&models.Wallet{},
		&models.CoinTransaction{},
		&models.PaymentEvent{},
		&models.Order{},
		&models.BattleUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	walletService := services.NewWalletService(db)
	catalogService := services.NewCatalogService(db)
	battleService := services.NewBattleService(db, walletService)
	roundService := services.NewRoundService(db, catalogService, services.DefaultRNG())
	settlementService := services.NewSettlementService(db, walletService)
	orderService := services.NewOrderService(db)

	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("BATTLE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("BATTLE_SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userSyncWorker := workers.NewUserSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", serviceToken)
	userSyncWorker.Start(ctx)

	paymentPoller := workers.NewPaymentPoller(walletService)
	go paymentPoller.Run(ctx, 10*time.Second)

	settlementService.StartDeadlineSweeper()

	handlers.SetupBattleRoutes(app, battleService, roundService, settlementService)
	handlers.SetupCatalogRoutes(app, catalogService)
	handlers.SetupWalletRoutes(app, walletService, orderService)

	go func() {
		if err := app.Listen(":5200"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("Server running on http://localhost:5200")
	log.Printf("CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
