package handlers

import (
	"net/http"

	"fluxquiz/services"

	"github.com/gin-gonic/gin"
)

type ArenaHandler struct {
	arena       *services.ArenaService
	quizService *services.QuizService
}

func NewArenaHandler(arena *services.ArenaService, quizService *services.QuizService) *ArenaHandler {
	return &ArenaHandler{arena: arena, quizService: quizService}
}

// GetLobby returns the live session state for a quiz, creating the
// session on first access. Clients render the lobby from this before the
// websocket connects.
func (h *ArenaHandler) GetLobby(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	state, err := h.arena.OpenLobby(quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	quiz, err := h.quizService.GetQuizForPlay(quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz":    quiz,
		"state":   state,
		"is_host": state.HostID == userID.(uint),
	})
}

// CancelSession is the administrative stop for a running session. The
// scheduler finalizes at its next loop boundary.
func (h *ArenaHandler) CancelSession(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.arena.Cancel(quizID, userID.(uint)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session cancelled"})
}
