package alerting

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRule indicates rule input failed validation.
	ErrInvalidRule = errors.New("alerting: invalid rule")
	// ErrRuleNotFound indicates the referenced rule does not exist.
	ErrRuleNotFound = errors.New("alerting: rule not found")
)

// RuleType selects the News field a rule is compared against.
type RuleType string

const (
	RuleTicker RuleType = "ticker"
	RuleSource RuleType = "source"
)

// Valid reports whether t is a rule type accepted for new rules.
func (t RuleType) Valid() bool {
	return t == RuleTicker || t == RuleSource
}

// Rule is a user-defined alert condition.
type Rule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      RuleType  `json:"type"`
	Value     string    `json:"value"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// RuleInput carries the fields for a new rule.
type RuleInput struct {
	Name  string   `json:"name"`
	Type  RuleType `json:"type"`
	Value string   `json:"value"`
}

// RulePatch lists optional rule updates; nil fields are left untouched.
type RulePatch struct {
	Name    *string   `json:"name,omitempty"`
	Type    *RuleType `json:"type,omitempty"`
	Value   *string   `json:"value,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RulePatch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.Value == nil && p.Enabled == nil
}

// Apply returns a copy of r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Value != nil {
		r.Value = *p.Value
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// Match is a single rule firing for a single news item.
type Match struct {
	RuleID      string    `json:"ruleId"`
	RuleName    string    `json:"ruleName"`
	NewsID      string    `json:"newsId"`
	NewsTitle   string    `json:"newsTitle"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

// Event is a persisted Match.
type Event struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"ruleId"`
	RuleName    string     `json:"ruleName"`
	NewsID      string     `json:"newsId"`
	NewsTitle   string     `json:"newsTitle"`
	TriggeredAt time.Time  `json:"triggeredAt"`
	ReadAt      *time.Time `json:"readAt"`
}
