package alerting

import (
	"strings"
	"time"

	"alphafeed/internal/news"
)

// Evaluate matches a news item against rules, preserving rule order.
func Evaluate(item news.News, rules []Rule) []Match {
	return EvaluateAt(item, rules, time.Now().UTC())
}

// EvaluateAt is Evaluate with an explicit trigger timestamp shared by all matches.
func EvaluateAt(item news.News, rules []Rule, triggeredAt time.Time) []Match {
	var matches []Match
	fired := make(map[string]struct{})
	for _, rule := range rules {
		if !rule.Enabled || !ruleMatches(item, rule) {
			continue
		}
		if rule.ID != "" {
			if _, dup := fired[rule.ID]; dup {
				continue
			}
			fired[rule.ID] = struct{}{}
		}
		matches = append(matches, Match{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			NewsID:      item.ID,
			NewsTitle:   item.Title,
			TriggeredAt: triggeredAt,
		})
	}
	return matches
}

func ruleMatches(item news.News, rule Rule) bool {
	switch rule.Type {
	case RuleTicker:
		for _, ticker := range item.Tickers {
			if strings.EqualFold(ticker, rule.Value) {
				return true
			}
		}
		return false
	case RuleSource:
		return strings.EqualFold(item.Source, rule.Value)
	default:
		return false
	}
}
