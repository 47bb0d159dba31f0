package services

import (
	"strings"

	"fluxquiz/models"
)

// CheckAnswer applies the question-type-specific correctness rule to a
// submitted answer. Both sides are trimmed first. True/false answers are
// compared upper-cased, multiple choice is an exact match against the
// option text, short answers are compared case-insensitively.
func CheckAnswer(questionType, correctAnswer, submitted string) bool {
	correct := strings.TrimSpace(correctAnswer)
	given := strings.TrimSpace(submitted)

	switch questionType {
	case models.QuestionTypeTF:
		return strings.ToUpper(correct) == strings.ToUpper(given)
	case models.QuestionTypeMCQ:
		return correct == given
	case models.QuestionTypeShort:
		return strings.EqualFold(correct, given)
	default:
		return false
	}
}
