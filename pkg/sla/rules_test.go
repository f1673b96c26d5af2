package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/thistle/pkg/models"
)

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name      string
		condition models.ConditionType
		value     string
		valid     bool
	}{
		{"keyword list", models.ConditionKeyword, "брак|defect", true},
		{"keyword regex", models.ConditionKeyword, "re:^refund", true},
		{"broken regex", models.ConditionKeyword, "re:(", false},
		{"empty keywords", models.ConditionKeyword, " | ", false},
		{"channels", models.ConditionChatType, "chat, question", true},
		{"unknown channel", models.ConditionChatType, "email", false},
		{"rating range", models.ConditionRating, "1-2", true},
		{"rating at most", models.ConditionRating, "<=3", true},
		{"inverted range", models.ConditionRating, "4-2", false},
		{"time based", models.ConditionTimeBased, "", true},
		{"unknown type", models.ConditionType("weather"), "rain", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(models.SLARule{ID: 1, ConditionType: tt.condition, ConditionValue: tt.value})
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var invalid *ErrInvalidCondition
			assert.ErrorAs(t, err, &invalid)
		})
	}
}
