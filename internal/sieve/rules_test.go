package sieve

import (
	"strings"
	"testing"
)

func TestRulesToScriptVIP(t *testing.T) {
	rules := []Rule{{
		ID:      "rule_0",
		Name:    "VIP",
		Enabled: true,
		Conditions: []Condition{
			{Field: "from", Operator: "contains", Value: "boss@ex.com"},
		},
		Actions: []Action{{Type: "fileinto", Value: "VIP"}},
	}}

	script := RulesToScript(rules)

	for _, want := range []string{
		"require [",
		"# Rule: VIP",
		`if header :contains "from" "boss@ex.com" {`,
		`    fileinto "VIP";`,
		"}",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}

func TestScriptRoundTrip(t *testing.T) {
	rules := []Rule{
		{
			ID:      "rule_0",
			Name:    "VIP",
			Enabled: true,
			Conditions: []Condition{
				{Field: "from", Operator: "contains", Value: "boss@ex.com"},
			},
			Actions: []Action{{Type: "fileinto", Value: "VIP"}},
		},
		{
			ID:      "rule_1",
			Name:    "Newsletter sweep",
			Enabled: false,
			Conditions: []Condition{
				{Field: "subject", Operator: "contains", Value: "unsubscribe"},
				{Field: "header", Operator: "is", Value: "bulk", HeaderName: "Precedence"},
			},
			Actions: []Action{
				{Type: "fileinto", Value: "Newsletter"},
				{Type: "flag", Value: "\\Seen"},
			},
		},
		{
			ID:      "rule_2",
			Name:    "Dump",
			Enabled: true,
			Conditions: []Condition{
				{Field: "from", Operator: "is", Value: "noreply@spam.example"},
			},
			Actions: []Action{{Type: "discard"}},
		},
	}

	parsed := ParseScript(RulesToScript(rules))
	if len(parsed) != len(rules) {
		t.Fatalf("parsed %d rules, want %d", len(parsed), len(rules))
	}

	for i, want := range rules {
		got := parsed[i]
		if got.Name != want.Name || got.Enabled != want.Enabled {
			t.Errorf("rule %d = %q/%v, want %q/%v", i, got.Name, got.Enabled, want.Name, want.Enabled)
		}
		if len(got.Conditions) != len(want.Conditions) {
			t.Errorf("rule %d conditions = %+v", i, got.Conditions)
			continue
		}
		for j, cond := range want.Conditions {
			g := got.Conditions[j]
			if g.Field != cond.Field || g.Operator != cond.Operator || g.Value != cond.Value || g.HeaderName != cond.HeaderName {
				t.Errorf("rule %d cond %d = %+v, want %+v", i, j, g, cond)
			}
		}
		if len(got.Actions) != len(want.Actions) {
			t.Errorf("rule %d actions = %+v", i, got.Actions)
			continue
		}
		for j, action := range want.Actions {
			g := got.Actions[j]
			if g.Type != action.Type || g.Value != action.Value {
				t.Errorf("rule %d action %d = %+v, want %+v", i, j, g, action)
			}
		}
	}
}

func TestRequireListsRegexOnlyWhenUsed(t *testing.T) {
	plain := RulesToScript([]Rule{{
		Name: "r", Enabled: true,
		Conditions: []Condition{{Field: "from", Operator: "contains", Value: "x"}},
		Actions:    []Action{{Type: "keep"}},
	}})
	if strings.Contains(plain, `"regex"`) {
		t.Error("regex extension required without a regex condition")
	}

	withRegex := RulesToScript([]Rule{{
		Name: "r", Enabled: true,
		Conditions: []Condition{{Field: "from", Operator: "regex", Value: ".*"}},
		Actions:    []Action{{Type: "keep"}},
	}})
	if !strings.Contains(withRegex, `"regex"`) {
		t.Error("regex extension missing from require")
	}
}

func TestMultiConditionWrapsInAllof(t *testing.T) {
	script := RulesToScript([]Rule{{
		Name: "multi", Enabled: true,
		Conditions: []Condition{
			{Field: "from", Operator: "contains", Value: "a"},
			{Field: "to", Operator: "contains", Value: "b"},
		},
		Actions: []Action{{Type: "keep"}},
	}})

	if !strings.Contains(script, "allof (") {
		t.Errorf("multi-condition rule not wrapped in allof:\n%s", script)
	}

	single := RulesToScript([]Rule{{
		Name: "single", Enabled: true,
		Conditions: []Condition{{Field: "from", Operator: "contains", Value: "a"}},
		Actions:    []Action{{Type: "keep"}},
	}})
	if strings.Contains(single, "allof") {
		t.Errorf("single-condition rule wrapped in allof:\n%s", single)
	}
}
