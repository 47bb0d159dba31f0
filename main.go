package main

import (
	"log"

	"fluxquiz/config"
	"fluxquiz/handlers"
	"fluxquiz/middleware"
	"fluxquiz/models"
	"fluxquiz/routes"
	"fluxquiz/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Result{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	quizService := services.NewQuizService(db)
	leaderboardService := services.NewLeaderboardService(redisClient)
	resultService := services.NewResultService(db, leaderboardService)

	// Initialize WebSocket hub and the live arena coordinator
	hub := services.NewHub()
	arenaService := services.NewArenaService(hub, quizService, resultService)
	hub.BindArena(arenaService)
	go hub.Run()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	quizHandler := handlers.NewQuizHandler(quizService)
	arenaHandler := handlers.NewArenaHandler(arenaService, quizService)
	resultHandler := handlers.NewResultHandler(resultService, quizService, leaderboardService)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, quizHandler, arenaHandler, resultHandler, hub, cfg.JWTSecret)

	// Start server
	addr := cfg.BindAddress + ":" + cfg.Port
	log.Printf("Server starting on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
