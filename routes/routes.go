package routes

import (
	"log"
	"net/http"

	"fluxquiz/handlers"
	"fluxquiz/middleware"
	"fluxquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	quizHandler *handlers.QuizHandler,
	arenaHandler *handlers.ArenaHandler,
	resultHandler *handlers.ResultHandler,
	hub *services.Hub,
	jwtSecret string,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			// User profile
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Quiz authoring routes
			quizzes := protected.Group("/quizzes")
			{
				quizzes.GET("", quizHandler.GetQuizzes)
				quizzes.POST("", quizHandler.CreateQuiz)
				quizzes.GET("/:id", quizHandler.GetQuizByID)
				quizzes.PUT("/:id", quizHandler.UpdateQuiz)
				quizzes.DELETE("/:id", quizHandler.DeleteQuiz)

				// Solo mode
				quizzes.GET("/:id/take", resultHandler.GetQuizForPlay)
				quizzes.POST("/:id/submit", resultHandler.SubmitSolo)

				// Arena standings per quiz
				quizzes.GET("/:id/standings", resultHandler.GetStandings)
			}

			// Live arena routes
			arena := protected.Group("/arena")
			{
				arena.GET("/:id/lobby", arenaHandler.GetLobby)
				arena.POST("/:id/cancel", arenaHandler.CancelSession)
			}

			// Results and rankings
			protected.GET("/results", resultHandler.GetMyResults)
			protected.GET("/leaderboard", resultHandler.GetLeaderboard)
		}
	}

	// WebSocket endpoint for the live arena. The connection is generic;
	// join_lobby binds it to a session room.
	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] upgrade failed: %v", err)
			return
		}
		hub.RegisterClient(conn)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
