package sla

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// ErrInvalidCondition marks a rule whose condition_value cannot be interpreted.
// Such a rule never matches; it is reported, not fatal.
type ErrInvalidCondition struct {
	RuleID int64
	Reason string
}

func (e *ErrInvalidCondition) Error() string {
	return fmt.Sprintf("sla rule %d: invalid condition: %s", e.RuleID, e.Reason)
}

type matcher struct {
	regexes sync.Map // pattern -> *regexp.Regexp
}

func (m *matcher) match(rule models.SLARule, i *models.Interaction) (bool, error) {
	switch rule.ConditionType {
	case models.ConditionKeyword:
		return m.matchKeyword(rule, i)
	case models.ConditionChatType:
		return matchChannel(rule, i), nil
	case models.ConditionRating:
		return matchRating(rule, i)
	case models.ConditionTimeBased:
		return true, nil
	default:
		return false, &ErrInvalidCondition{RuleID: rule.ID, Reason: fmt.Sprintf("unknown condition type %q", rule.ConditionType)}
	}
}

func (m *matcher) matchKeyword(rule models.SLARule, i *models.Interaction) (bool, error) {
	text := strings.ToLower(i.Subject + "\n" + i.Text)
	value := strings.TrimSpace(rule.ConditionValue)

	if pattern, ok := strings.CutPrefix(value, "re:"); ok {
		re, err := m.compile(pattern)
		if err != nil {
			return false, &ErrInvalidCondition{RuleID: rule.ID, Reason: err.Error()}
		}
		return re.MatchString(text), nil
	}

	for _, kw := range splitList(value) {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *matcher) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := m.regexes.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	m.regexes.Store(pattern, re)
	return re, nil
}

func matchChannel(rule models.SLARule, i *models.Interaction) bool {
	for _, c := range splitList(rule.ConditionValue) {
		if models.Channel(strings.ToLower(c)) == i.Channel {
			return true
		}
	}
	return false
}

func matchRating(rule models.SLARule, i *models.Interaction) (bool, error) {
	lo, hi, err := parseRange(rule.ConditionValue)
	if err != nil {
		return false, &ErrInvalidCondition{RuleID: rule.ID, Reason: err.Error()}
	}
	if i.Rating == nil {
		return false, nil
	}
	return *i.Rating >= lo && *i.Rating <= hi, nil
}

// parseRange accepts "N", "N-M", "<=N" and ">=N".
func parseRange(value string) (int, int, error) {
	v := strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	switch {
	case strings.HasPrefix(v, "<="):
		n, err := strconv.Atoi(v[2:])
		return minRating, n, err
	case strings.HasPrefix(v, ">="):
		n, err := strconv.Atoi(v[2:])
		return n, maxRating, err
	}

	if lo, hi, ok := strings.Cut(v, "-"); ok {
		l, err := strconv.Atoi(lo)
		if err != nil {
			return 0, 0, err
		}
		h, err := strconv.Atoi(hi)
		if err != nil {
			return 0, 0, err
		}
		if l > h {
			return 0, 0, fmt.Errorf("empty rating range %q", value)
		}
		return l, h, nil
	}

	n, err := strconv.Atoi(v)
	return n, n, err
}

const (
	minRating = 1
	maxRating = 5
)

func splitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ValidateRule reports whether the rule's condition can be interpreted.
func ValidateRule(rule models.SLARule) error {
	value := strings.TrimSpace(rule.ConditionValue)
	switch rule.ConditionType {
	case models.ConditionKeyword:
		if pattern, ok := strings.CutPrefix(value, "re:"); ok {
			if _, err := regexp.Compile("(?i)" + pattern); err != nil {
				return &ErrInvalidCondition{RuleID: rule.ID, Reason: err.Error()}
			}
			return nil
		}
		if len(splitList(value)) == 0 {
			return &ErrInvalidCondition{RuleID: rule.ID, Reason: "no keywords"}
		}
	case models.ConditionChatType:
		channels := splitList(value)
		if len(channels) == 0 {
			return &ErrInvalidCondition{RuleID: rule.ID, Reason: "no channels"}
		}
		for _, c := range channels {
			if _, err := models.ParseChannel(c); err != nil {
				return &ErrInvalidCondition{RuleID: rule.ID, Reason: err.Error()}
			}
		}
	case models.ConditionRating:
		if _, _, err := parseRange(value); err != nil {
			return &ErrInvalidCondition{RuleID: rule.ID, Reason: err.Error()}
		}
	case models.ConditionTimeBased:
	default:
		return &ErrInvalidCondition{RuleID: rule.ID, Reason: fmt.Sprintf("unknown condition type %q", rule.ConditionType)}
	}
	return nil
}
