package analyze

// ActivityNone is the result when no detections survive aggregation
// (including the case where every sampled frame failed the quality filter).
const ActivityNone = "No activity detected"

// Condition is one requirement of a rule, against a single class.
type Condition struct {
	Class         string
	MinCount      int     // minimum total detections of Class (0 means 1)
	MinConfidence float32 // minimum mean confidence of Class (0 means any)
}

// Rule maps a set of class conditions to an activity description.
type Rule struct {
	When     []Condition
	Activity string
}

// DefaultRules is the activity rule table, evaluated top-down: the first rule
// whose conditions are all satisfied wins, so more specific rules come first.
// The table is static configuration, shared by all requests.
func DefaultRules() []Rule {
	// A person is only "doing" something if we saw them more than once,
	// with decent confidence.
	person := Condition{Class: "person", MinCount: 2, MinConfidence: 0.5}
	return []Rule{
		{When: []Condition{person, {Class: "tv"}}, Activity: "Person watching TV"},
		{When: []Condition{person, {Class: "laptop"}}, Activity: "Person using laptop"},
		{When: []Condition{person, {Class: "cell phone"}}, Activity: "Person using phone"},
		{When: []Condition{person, {Class: "dog"}}, Activity: "Person with dog"},
		{When: []Condition{person, {Class: "cat"}}, Activity: "Person with cat"},
		{When: []Condition{person, {Class: "car"}}, Activity: "Person near car"},
		{When: []Condition{person, {Class: "bicycle"}}, Activity: "Person with bicycle"},
		{When: []Condition{person, {Class: "chair"}}, Activity: "Person sitting"},
		{When: []Condition{person, {Class: "dining table"}}, Activity: "Person at table"},
		{When: []Condition{{Class: "car", MinCount: 2}}, Activity: "Multiple cars present"},
		{When: []Condition{{Class: "truck"}}, Activity: "Truck present"},
		{When: []Condition{{Class: "bus"}}, Activity: "Bus present"},
		{When: []Condition{{Class: "motorcycle"}}, Activity: "Motorcycle present"},
		{When: []Condition{{Class: "dog", MinCount: 2}}, Activity: "Multiple dogs present"},
		{When: []Condition{{Class: "cat", MinCount: 2}}, Activity: "Multiple cats present"},
	}
}

// InferActivity maps ordered class summaries to a single activity description.
// If no rule matches but something was detected, we fall back to naming the
// top-ranked class. An empty summary set always yields ActivityNone.
func InferActivity(rules []Rule, summaries []ClassSummary) string {
	if len(summaries) == 0 {
		return ActivityNone
	}
	byClass := map[string]ClassSummary{}
	for _, s := range summaries {
		byClass[s.Class] = s
	}
	for _, rule := range rules {
		if ruleMatches(rule, byClass) {
			return rule.Activity
		}
	}
	return "Activity involving " + summaries[0].Class
}

func ruleMatches(rule Rule, byClass map[string]ClassSummary) bool {
	for _, cond := range rule.When {
		s, ok := byClass[cond.Class]
		if !ok {
			return false
		}
		minCount := max(cond.MinCount, 1)
		if s.Count < minCount {
			return false
		}
		if s.MeanConfidence < cond.MinConfidence {
			return false
		}
	}
	return len(rule.When) != 0
}
