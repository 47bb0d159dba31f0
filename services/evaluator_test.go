package services

import (
	"testing"

	"fluxquiz/models"

	"github.com/stretchr/testify/assert"
)

func TestCheckAnswer(t *testing.T) {
	tests := map[string]struct {
		questionType string
		correct      string
		submitted    string
		want         bool
	}{
		"tf exact":                      {models.QuestionTypeTF, "TRUE", "TRUE", true},
		"tf case-insensitive":           {models.QuestionTypeTF, "TRUE", "true", true},
		"tf trimmed":                    {models.QuestionTypeTF, "TRUE", "  True ", true},
		"tf wrong":                      {models.QuestionTypeTF, "TRUE", "false", false},
		"mcq exact":                     {models.QuestionTypeMCQ, "Paris", "Paris", true},
		"mcq case-sensitive":            {models.QuestionTypeMCQ, "Paris", "paris", false},
		"mcq trimmed":                   {models.QuestionTypeMCQ, "Paris", " Paris ", true},
		"mcq wrong":                     {models.QuestionTypeMCQ, "Paris", "Lyon", false},
		"short case-insensitive":        {models.QuestionTypeShort, "Paris", " paris ", true},
		"short wrong":                   {models.QuestionTypeShort, "Paris", "London", false},
		"short trims the stored answer": {models.QuestionTypeShort, " Paris ", "paris", true},
		"unknown type never correct":    {"essay", "x", "x", false},
		"empty submission":              {models.QuestionTypeShort, "Paris", "", false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAnswer(tt.questionType, tt.correct, tt.submitted))
		})
	}
}
