package transition

import (
	"fmt"
	"sort"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

type Rule struct {
	From      string
	To        string
	Priority  int
	Condition Condition
}

func Compile(def model.TransitionDef) (Rule, error) {
	cond, err := CompileCondition(def.Condition)
	if err != nil {
		return Rule{}, fmt.Errorf("transition %s -> %s: %w", def.From, def.To, err)
	}
	return Rule{
		From:      def.From,
		To:        def.To,
		Priority:  def.Priority,
		Condition: cond,
	}, nil
}

// Sort orders rules by ascending priority, keeping declaration order for ties.
func Sort(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

// Next returns the first rule, in priority order, whose condition holds for snap.
// It reports false when nothing matches. A condition that fails to evaluate does
// not match.
func Next(rules []Rule, snap model.Snapshot) (Rule, bool) {
	ordered := rules
	if !sort.SliceIsSorted(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority }) {
		ordered = append([]Rule(nil), rules...)
		Sort(ordered)
	}
	for _, rule := range ordered {
		ok, err := rule.Condition.Evaluate(snap)
		if err != nil {
			logger.Warn("error in evaluating transition condition", zap.String("from", rule.From), zap.String("to", rule.To), zap.Error(err))
			continue
		}
		if ok {
			return rule, true
		}
	}
	return Rule{}, false
}
