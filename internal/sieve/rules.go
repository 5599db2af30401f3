package sieve

import (
	"fmt"
	"strings"
)

// Rule is the visual form of a filter: named, toggleable, with header
// tests and actions. Rules serialize to a Sieve script and back.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Condition is a header test
type Condition struct {
	Field      string `json:"field"`    // from | to | subject | header
	Operator   string `json:"operator"` // contains | is | matches | regex
	Value      string `json:"value"`
	HeaderName string `json:"headerName,omitempty"` // when Field == "header"
}

// Action is a rule action
type Action struct {
	Type  string `json:"type"` // fileinto | redirect | discard | keep | flag | reject
	Value string `json:"value,omitempty"`
}

// RulesToScript serializes rules into a Sieve script. Each rule is
// prefixed with "# Rule: <name>" (and "# DISABLED:" when disabled);
// multi-condition rules wrap in allof (...); the require header always
// lists fileinto, imap4flags and reject, and adds regex when a
// condition uses that operator.
func RulesToScript(rules []Rule) string {
	var b strings.Builder

	b.WriteString("require [" + strings.Join(requiredExtensions(rules), ", ") + "];\n\n")

	for _, rule := range rules {
		if !rule.Enabled {
			b.WriteString("# DISABLED: ")
		}
		fmt.Fprintf(&b, "# Rule: %s\n", rule.Name)

		if len(rule.Conditions) == 0 {
			continue
		}

		b.WriteString("if ")
		if len(rule.Conditions) > 1 {
			b.WriteString("allof (\n")
		}

		for i, cond := range rule.Conditions {
			if i > 0 {
				b.WriteString(",\n")
			}
			if len(rule.Conditions) > 1 {
				b.WriteString("    ")
			}
			b.WriteString(conditionToTest(cond))
		}

		if len(rule.Conditions) > 1 {
			b.WriteString("\n)")
		}
		b.WriteString(" {\n")

		for _, action := range rule.Actions {
			b.WriteString(actionToStatement(action))
		}

		b.WriteString("}\n\n")
	}

	return b.String()
}

func requiredExtensions(rules []Rule) []string {
	need := map[string]bool{"fileinto": true, "imap4flags": true, "reject": true}
	for _, rule := range rules {
		for _, cond := range rule.Conditions {
			if cond.Operator == "regex" {
				need["regex"] = true
			}
		}
	}

	ordered := []string{"fileinto", "imap4flags", "reject", "regex"}
	var out []string
	for _, ext := range ordered {
		if need[ext] {
			out = append(out, fmt.Sprintf("%q", ext))
		}
	}
	return out
}

func conditionToTest(cond Condition) string {
	field := cond.Field
	if field == "header" {
		field = cond.HeaderName
		if field == "" {
			field = "X-Custom"
		}
	}

	op := cond.Operator
	switch op {
	case "is", "matches", "regex", "contains":
	default:
		op = "contains"
	}

	return fmt.Sprintf("header :%s %q %q", op, field, cond.Value)
}

func actionToStatement(action Action) string {
	switch action.Type {
	case "fileinto":
		target := action.Value
		if target == "" {
			target = "INBOX"
		}
		return fmt.Sprintf("    fileinto %q;\n", target)
	case "redirect":
		return fmt.Sprintf("    redirect %q;\n", action.Value)
	case "discard":
		return "    discard;\n"
	case "flag":
		flag := action.Value
		if flag == "" {
			flag = "\\Flagged"
		}
		return fmt.Sprintf("    addflag %q;\n", flag)
	case "reject":
		text := action.Value
		if text == "" {
			text = "Message rejected"
		}
		return fmt.Sprintf("    reject %q;\n", text)
	default:
		return "    keep;\n"
	}
}

// ParseScript reads a script produced by RulesToScript back into rules.
// Lines outside "# Rule:" blocks (like the require header) are ignored.
func ParseScript(script string) []Rule {
	var rules []Rule
	var current *Rule
	disabledNext := false
	ruleID := 0

	flush := func() {
		if current != nil {
			rules = append(rules, *current)
			current = nil
		}
	}

	for _, rawLine := range strings.Split(script, "\n") {
		line := strings.TrimSpace(rawLine)

		if strings.HasPrefix(line, "# DISABLED:") {
			disabledNext = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "# DISABLED:"))
		}

		if strings.HasPrefix(line, "# Rule:") {
			flush()
			current = &Rule{
				ID:      fmt.Sprintf("rule_%d", ruleID),
				Name:    strings.TrimSpace(strings.TrimPrefix(line, "# Rule:")),
				Enabled: !disabledNext,
			}
			ruleID++
			disabledNext = false
			continue
		}
		disabledNext = false

		if current == nil {
			continue
		}

		// Header tests appear as "if header :..." for single-condition
		// rules and indented "header :..." inside allof blocks.
		if idx := strings.Index(line, "header :"); idx >= 0 {
			if cond, ok := parseHeaderTest(line[idx:]); ok {
				current.Conditions = append(current.Conditions, cond)
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "fileinto"):
			if v, ok := firstQuoted(line); ok {
				current.Actions = append(current.Actions, Action{Type: "fileinto", Value: v})
			}
		case strings.HasPrefix(line, "redirect"):
			if v, ok := firstQuoted(line); ok {
				current.Actions = append(current.Actions, Action{Type: "redirect", Value: v})
			}
		case strings.HasPrefix(line, "addflag"):
			if v, ok := firstQuoted(line); ok {
				current.Actions = append(current.Actions, Action{Type: "flag", Value: v})
			}
		case strings.HasPrefix(line, "reject"):
			if v, ok := firstQuoted(line); ok {
				current.Actions = append(current.Actions, Action{Type: "reject", Value: v})
			}
		case strings.HasPrefix(line, "discard"):
			current.Actions = append(current.Actions, Action{Type: "discard"})
		case strings.HasPrefix(line, "keep"):
			current.Actions = append(current.Actions, Action{Type: "keep"})
		}
	}
	flush()

	return rules
}

// parseHeaderTest parses `header :op "field" "value"` fragments,
// tolerating a trailing allof comma or opening brace.
func parseHeaderTest(line string) (Condition, bool) {
	rest := strings.TrimPrefix(line, "header :")
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return Condition{}, false
	}
	op := rest[:sp]

	parts := strings.Split(rest[sp:], `"`)
	if len(parts) < 4 {
		return Condition{}, false
	}
	unescape := strings.NewReplacer(`\\`, `\`, `\"`, `"`)
	field := unescape.Replace(parts[1])
	value := unescape.Replace(parts[3])

	cond := Condition{Operator: op, Value: value}
	switch strings.ToLower(field) {
	case "from", "to", "subject":
		cond.Field = strings.ToLower(field)
	default:
		cond.Field = "header"
		cond.HeaderName = field
	}
	return cond, true
}

func firstQuoted(line string) (string, bool) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", false
	}
	var b strings.Builder
	for i := start + 1; i < len(line) && line[i] != '"'; i++ {
		if line[i] == '\\' && i+1 < len(line) {
			i++
		}
		b.WriteByte(line[i])
	}
	return b.String(), true
}
