package handlers

import (
	"net/http"

	"fluxquiz/models"
	"fluxquiz/services"

	"github.com/gin-gonic/gin"
)

type ResultHandler struct {
	resultService *services.ResultService
	quizService   *services.QuizService
	leaderboard   *services.LeaderboardService
}

func NewResultHandler(resultService *services.ResultService, quizService *services.QuizService, leaderboard *services.LeaderboardService) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		quizService:   quizService,
		leaderboard:   leaderboard,
	}
}

// SubmitSolo scores an asynchronous full-quiz attempt and persists one
// solo result.
func (h *ResultHandler) SubmitSolo(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	username, _ := c.Get("username")

	var req services.SubmitSoloRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.GetQuizWithQuestions(quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.resultService.SubmitSolo(quiz, userID.(uint), username.(string), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ResultHandler) GetMyResults(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	role, _ := c.Get("role")

	results, err := h.resultService.GetUserResults(userID.(uint), role.(string))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// GetStandings returns the final arena ranking for a quiz, with the top
// three as the podium.
func (h *ResultHandler) GetStandings(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	standings, err := h.resultService.GetArenaStandings(quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	podium := standings
	if len(podium) > 3 {
		podium = podium[:3]
	}

	c.JSON(http.StatusOK, gin.H{
		"standings": standings,
		"podium":    podium,
	})
}

func (h *ResultHandler) GetLeaderboard(c *gin.Context) {
	entries, err := h.leaderboard.Top(10)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []services.AllTimeEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// GetQuizForPlay hands a student the quiz with answers stripped for a
// solo attempt.
func (h *ResultHandler) GetQuizForPlay(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}
	if role, _ := c.Get("role"); role != models.RoleStudent {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	quiz, err := h.quizService.GetQuizForPlay(quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}
