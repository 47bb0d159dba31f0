package services

import (
	"log"
	"math"
	"strings"
	"time"

	"fluxquiz/errs"
	"fluxquiz/models"

	"gorm.io/gorm"
)

// LeaderboardBumper feeds durable result writes into the all-time
// leaderboard ranking.
type LeaderboardBumper interface {
	Bump(username string, points int) error
}

type ResultService struct {
	db          *gorm.DB
	leaderboard LeaderboardBumper
	now         func() time.Time
}

func NewResultService(db *gorm.DB, leaderboard LeaderboardBumper) *ResultService {
	return &ResultService{db: db, leaderboard: leaderboard, now: time.Now}
}

type SoloAnswer struct {
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

type SubmitSoloRequest struct {
	Answers []SoloAnswer `json:"answers" binding:"required"`
}

type ScoredAnswer struct {
	Question      string `json:"question"`
	Type          string `json:"type"`
	Points        int    `json:"points"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

type SoloResult struct {
	Result  models.Result  `json:"result"`
	Answers []ScoredAnswer `json:"answers"`
}

// InsertResult writes one result row and bumps the all-time leaderboard.
// Leaderboard failures are logged, not returned: the durable write is
// what matters.
func (s *ResultService) InsertResult(result *models.Result) error {
	if err := s.db.Create(result).Error; err != nil {
		return errs.Wrap(errs.CodePersistence, "failed to insert result", err)
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.Bump(result.Username, result.Score); err != nil {
			log.Printf("[Results] leaderboard bump failed for %s: %v", result.Username, err)
		}
	}
	return nil
}

// SubmitSolo scores a full answer sheet against a quiz using the same
// per-type rules as the live arena, writes one solo result and returns
// the per-question breakdown.
func (s *ResultService) SubmitSolo(quiz *models.Quiz, userID uint, username string, req *SubmitSoloRequest) (*SoloResult, error) {
	byIndex := make(map[int]string, len(req.Answers))
	for _, a := range req.Answers {
		byIndex[a.QuestionIndex] = a.Answer
	}

	score := 0
	total := quiz.TotalPoints()
	scored := make([]ScoredAnswer, 0, len(quiz.Questions))

	for i, q := range quiz.Questions {
		given := strings.TrimSpace(byIndex[i])
		correct := CheckAnswer(q.Type, q.Answer, given)
		if correct {
			score += q.Points
		}
		scored = append(scored, ScoredAnswer{
			Question:      q.Text,
			Type:          q.Type,
			Points:        q.Points,
			StudentAnswer: given,
			CorrectAnswer: q.Answer,
			Correct:       correct,
		})
	}

	percentage := 0.0
	if total > 0 {
		percentage = math.Round(float64(score)/float64(total)*1000) / 10
	}

	result := models.Result{
		QuizID:        quiz.ID,
		QuizTitle:     quiz.Title,
		UserID:        userID,
		Username:      username,
		Score:         score,
		TotalPossible: total,
		Percentage:    percentage,
		Mode:          models.ResultModeSolo,
		CompletedAt:   s.now(),
	}
	if err := s.InsertResult(&result); err != nil {
		return nil, err
	}

	return &SoloResult{Result: result, Answers: scored}, nil
}

// GetUserResults returns a user's result history across both modes,
// newest first. Masters see everything.
func (s *ResultService) GetUserResults(userID uint, role string) ([]models.Result, error) {
	var results []models.Result
	query := s.db.Order("completed_at DESC")
	if role != models.RoleMaster {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, errs.Wrap(errs.CodePersistence, "failed to list results", err)
	}
	return results, nil
}

type Standing struct {
	Rank          int     `json:"rank"`
	Username      string  `json:"username"`
	UserID        uint    `json:"user_id"`
	Score         int     `json:"score"`
	TotalPossible int     `json:"total_possible"`
	Percentage    float64 `json:"percentage"`
}

// GetArenaStandings ranks the arena results for one quiz by score
// descending. The first three entries are the podium.
func (s *ResultService) GetArenaStandings(quizID uint) ([]Standing, error) {
	var results []models.Result
	err := s.db.
		Where("quiz_id = ? AND mode = ?", quizID, models.ResultModeArena).
		Order("score DESC, completed_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, "failed to load standings", err)
	}

	standings := make([]Standing, 0, len(results))
	for i, r := range results {
		standings = append(standings, Standing{
			Rank:          i + 1,
			Username:      r.Username,
			UserID:        r.UserID,
			Score:         r.Score,
			TotalPossible: r.TotalPossible,
			Percentage:    r.Percentage,
		})
	}
	return standings, nil
}
