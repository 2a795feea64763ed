package threat

import (
	"fmt"
	"sort"

	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/services/tracking"
)

// Rule fires when every class in Required is present in the frame.
type Rule struct {
	Name     string
	Required []int
	Reason   string
}

// RuleSpec describes a rule by class labels, resolved against a catalog.
type RuleSpec struct {
	Name   string
	Labels []string
	Reason string
}

// DefaultRuleSpecs is the bank threat table, highest priority first.
var DefaultRuleSpecs = []RuleSpec{
	{Name: "armed_masked", Labels: []string{models.LabelGun, models.LabelMask}, Reason: "armed person with mask"},
	{Name: "knife", Labels: []string{models.LabelKnife}, Reason: "person with knife"},
	{Name: "hands_up", Labels: []string{models.LabelHandsUp}, Reason: "possible robbery (hands up)"},
}

// CompileRules resolves label based specs into class id rules.
func CompileRules(catalog *models.ClassCatalog, specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		if len(spec.Labels) == 0 {
			return nil, fmt.Errorf("rule %q has no required classes", spec.Name)
		}
		rule := Rule{Name: spec.Name, Reason: spec.Reason, Required: make([]int, 0, len(spec.Labels))}
		for _, label := range spec.Labels {
			id, ok := catalog.ID(label)
			if !ok {
				return nil, fmt.Errorf("rule %q: label %q: %w", spec.Name, label, models.ErrUnknownClass)
			}
			rule.Required = append(rule.Required, id)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// DefaultRules compiles DefaultRuleSpecs against the catalog.
func DefaultRules(catalog *models.ClassCatalog) ([]Rule, error) {
	return CompileRules(catalog, DefaultRuleSpecs)
}

// Evaluator reduces a frame's tracked classes to a threat decision. The
// first matching rule wins. Evaluator holds no mutable state.
type Evaluator struct {
	catalog *models.ClassCatalog
	rules   []Rule
}

// NewEvaluator creates an evaluator over an ordered rule table.
func NewEvaluator(catalog *models.ClassCatalog, rules []Rule) *Evaluator {
	return &Evaluator{
		catalog: catalog,
		rules:   append([]Rule(nil), rules...),
	}
}

// Rules returns a copy of the rule table in priority order.
func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate returns the decision for a set of class ids. Ids unknown to the
// catalog never satisfy a rule.
func (e *Evaluator) Evaluate(classIDs map[int]struct{}) models.ThreatDecision {
	if len(classIDs) == 0 {
		return models.ThreatDecision{}
	}

	for _, rule := range e.rules {
		if e.matches(rule, classIDs) {
			return models.ThreatDecision{IsThreat: true, Reason: rule.Reason}
		}
	}
	return models.ThreatDecision{}
}

func (e *Evaluator) matches(rule Rule, classIDs map[int]struct{}) bool {
	if len(rule.Required) == 0 {
		return false
	}
	for _, id := range rule.Required {
		if !e.catalog.Has(id) {
			return false
		}
		if _, ok := classIDs[id]; !ok {
			return false
		}
	}
	return true
}

// UnknownClasses returns the ids in the set the catalog does not know, ascending.
func (e *Evaluator) UnknownClasses(classIDs map[int]struct{}) []int {
	var unknown []int
	for id := range classIDs {
		if !e.catalog.Has(id) {
			unknown = append(unknown, id)
		}
	}
	sort.Ints(unknown)
	return unknown
}

// ClassSet collects the distinct class ids of a frame's tracked results.
func ClassSet(results []tracking.Result) map[int]struct{} {
	set := make(map[int]struct{}, len(results))
	for _, r := range results {
		set[r.ClassID] = struct{}{}
	}
	return set
}
