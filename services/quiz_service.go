package services

import (
	"strings"

	"fluxquiz/errs"
	"fluxquiz/models"

	"gorm.io/gorm"
)

const (
	maxQuestions = 50
	minTimeLimit = 5
	maxTimeLimit = 120
)

type QuizService struct {
	db *gorm.DB
}

func NewQuizService(db *gorm.DB) *QuizService {
	return &QuizService{db: db}
}

type CreateQuizRequest struct {
	Title     string                  `json:"title" binding:"required"`
	Subject   string                  `json:"subject" binding:"required"`
	Duration  int                     `json:"duration" binding:"required,min=1"`
	Questions []CreateQuestionRequest `json:"questions" binding:"required,min=1"`
}

type CreateQuestionRequest struct {
	Type      string   `json:"type" binding:"required,oneof=mcq tf short"`
	Text      string   `json:"text" binding:"required"`
	Answer    string   `json:"answer" binding:"required"`
	Points    int      `json:"points"`
	TimeLimit int      `json:"time_limit"`
	Options   []string `json:"options"`
}

type UpdateQuizRequest struct {
	Title     string                  `json:"title" binding:"required"`
	Subject   string                  `json:"subject" binding:"required"`
	Duration  int                     `json:"duration" binding:"required,min=1"`
	Questions []CreateQuestionRequest `json:"questions" binding:"required,min=1"`
}

// normalizeQuestions validates authoring input and applies the platform
// rules: points floor at 1, time limits clamped to 5-120 s, true/false
// answers stored upper-cased, mcq needs 2-6 options including the answer.
func normalizeQuestions(questions []CreateQuestionRequest) ([]models.Question, error) {
	if len(questions) == 0 {
		return nil, errs.InvalidRequest("add at least one question")
	}
	if len(questions) > maxQuestions {
		return nil, errs.Newf(errs.CodeInvalidRequest, "maximum %d questions allowed", maxQuestions)
	}

	normalized := make([]models.Question, 0, len(questions))
	for i, q := range questions {
		text := strings.TrimSpace(q.Text)
		answer := strings.TrimSpace(q.Answer)
		if text == "" || answer == "" {
			return nil, errs.Newf(errs.CodeInvalidRequest, "question %d needs text and an answer", i+1)
		}

		points := q.Points
		if points < 1 {
			points = 1
		}
		timeLimit := q.TimeLimit
		if timeLimit == 0 {
			timeLimit = 30
		}
		if timeLimit < minTimeLimit {
			timeLimit = minTimeLimit
		} else if timeLimit > maxTimeLimit {
			timeLimit = maxTimeLimit
		}

		question := models.Question{
			Type:      q.Type,
			Text:      text,
			Answer:    answer,
			Points:    points,
			TimeLimit: timeLimit,
			Order:     i + 1,
		}

		switch q.Type {
		case models.QuestionTypeTF:
			question.Answer = strings.ToUpper(answer)
		case models.QuestionTypeMCQ:
			options := make([]models.Option, 0, len(q.Options))
			for j, opt := range q.Options {
				opt = strings.TrimSpace(opt)
				if opt == "" {
					continue
				}
				options = append(options, models.Option{Text: opt, Order: j + 1})
			}
			if len(options) < 2 || len(options) > 6 {
				return nil, errs.Newf(errs.CodeInvalidRequest, "mcq question %d needs 2-6 options", i+1)
			}
			question.Options = options
		}

		normalized = append(normalized, question)
	}
	return normalized, nil
}

func (s *QuizService) CreateQuiz(userID uint, req *CreateQuizRequest) (*models.Quiz, error) {
	questions, err := normalizeQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	quiz := models.Quiz{
		Title:     strings.TrimSpace(req.Title),
		Subject:   strings.TrimSpace(req.Subject),
		Duration:  req.Duration,
		UserID:    userID,
		Questions: questions,
	}

	if err := s.db.Create(&quiz).Error; err != nil {
		return nil, errs.Wrap(errs.CodePersistence, "failed to create quiz", err)
	}
	return &quiz, nil
}

// GetQuizzes lists quizzes visible to a user: masters see their own,
// students see everything.
func (s *QuizService) GetQuizzes(userID uint, role string) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	query := s.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("questions.\"order\" ASC")
	}).Order("created_at DESC")

	if role == models.RoleMaster {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Find(&quizzes).Error; err != nil {
		return nil, errs.Wrap(errs.CodePersistence, "failed to list quizzes", err)
	}
	return quizzes, nil
}

// GetQuizWithQuestions loads a quiz with its questions and options in
// authored order. This is the arena's quiz store.
func (s *QuizService) GetQuizWithQuestions(quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.\"order\" ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("options.\"order\" ASC")
		}).
		First(&quiz, quizID).Error
	if err != nil {
		return nil, errs.NotFound("quiz not found")
	}
	return &quiz, nil
}

// GetQuizForPlay returns a quiz with the authoritative answers stripped,
// safe to hand to a client before any reveal.
func (s *QuizService) GetQuizForPlay(quizID uint) (*models.Quiz, error) {
	quiz, err := s.GetQuizWithQuestions(quizID)
	if err != nil {
		return nil, err
	}
	for i := range quiz.Questions {
		quiz.Questions[i].Answer = ""
	}
	return quiz, nil
}

func (s *QuizService) UpdateQuiz(quizID, userID uint, req *UpdateQuizRequest) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := s.db.Where("id = ? AND user_id = ?", quizID, userID).First(&quiz).Error; err != nil {
		return nil, errs.NotFound("quiz not found or access denied")
	}

	questions, err := normalizeQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Replace the question set wholesale; authored order is rebuilt
		// from the request.
		var questionIDs []uint
		if err := tx.Model(&models.Question{}).Where("quiz_id = ?", quizID).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&models.Option{}).Error; err != nil {
				return err
			}
			if err := tx.Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
				return err
			}
		}

		quiz.Title = strings.TrimSpace(req.Title)
		quiz.Subject = strings.TrimSpace(req.Subject)
		quiz.Duration = req.Duration
		quiz.Questions = questions
		return tx.Save(&quiz).Error
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, "failed to update quiz", err)
	}
	return &quiz, nil
}

func (s *QuizService) DeleteQuiz(quizID, userID uint) error {
	var quiz models.Quiz
	if err := s.db.Where("id = ? AND user_id = ?", quizID, userID).First(&quiz).Error; err != nil {
		return errs.NotFound("quiz not found or access denied")
	}
	if err := s.db.Delete(&quiz).Error; err != nil {
		return errs.Wrap(errs.CodePersistence, "failed to delete quiz", err)
	}
	return nil
}
