package validate

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SchemaError locates one problem in the context delta log.
type SchemaError struct {
	Path    string
	Message string
}

func (e SchemaError) String() string {
	return fmt.Sprintf("[SCHEMA] %s: %s", e.Path, e.Message)
}

// ValidateDeltaFile checks the context delta log at path.
func ValidateDeltaFile(path string) []SchemaError {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SchemaError{{Path: "root", Message: path + " not found"}}
		}
		return []SchemaError{{Path: "root", Message: err.Error()}}
	}
	return ValidateDelta(data)
}

// ValidateDelta checks a context delta log document. Every entry is
// validated; an empty result means the log is well formed.
func ValidateDelta(data []byte) []SchemaError {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []SchemaError{{Path: "root", Message: "YAML parse error: " + err.Error()}}
	}

	var root *yaml.Node
	if len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	entries := field(root, "entries")
	if root == nil || root.Kind != yaml.MappingNode || entries == nil {
		return []SchemaError{{Path: "root", Message: "top-level must be a mapping with key 'entries'"}}
	}
	if entries.Kind != yaml.SequenceNode || len(entries.Content) == 0 {
		return []SchemaError{{Path: "entries", Message: "'entries' must be a non-empty list"}}
	}

	v := &deltaValidator{}
	for i, entry := range entries.Content {
		v.entry(entry, i)
	}
	return v.errs
}

type deltaValidator struct {
	errs []SchemaError
}

func (v *deltaValidator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, SchemaError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *deltaValidator) require(ok bool, path, msg string) bool {
	if !ok {
		v.fail(path, "%s", msg)
	}
	return ok
}

func (v *deltaValidator) entry(n *yaml.Node, idx int) {
	cd := field(n, "context_delta")
	if !v.require(n.Kind == yaml.MappingNode && cd != nil && cd.Kind == yaml.MappingNode,
		fmt.Sprintf("entries[%d]", idx), "each item must be a mapping with key 'context_delta'") {
		return
	}

	path := fmt.Sprintf("entries[%d].context_delta", idx)
	for _, key := range []string{"status", "decisions", "next_actions", "risks"} {
		v.require(field(cd, key) != nil, path, fmt.Sprintf("missing '%s'", key))
	}

	if s := field(cd, "status"); s != nil {
		v.status(s, path+".status")
	}
	if d := field(cd, "decisions"); d != nil {
		v.decisions(d, path+".decisions")
	}
	if a := field(cd, "next_actions"); a != nil {
		v.nextActions(a, path+".next_actions")
	}
	if r := field(cd, "risks"); r != nil {
		v.risks(r, path+".risks")
	}
}

func (v *deltaValidator) status(n *yaml.Node, path string) {
	if !v.require(n.Kind == yaml.MappingNode, path, "status must be a mapping") {
		return
	}
	v.require(nonEmptyString(field(n, "summary")), path, "status.summary must be non-empty string")
	if d := field(n, "last_updated"); !isDateLike(d) {
		v.fail(path, "status.last_updated must be YYYY-MM-DD or YAML date, got %s", describe(d))
	}
}

func (v *deltaValidator) decisions(n *yaml.Node, path string) {
	if !v.require(n.Kind == yaml.SequenceNode, path, "decisions must be a list") {
		return
	}
	for i, d := range n.Content {
		at := fmt.Sprintf("%s[%d]", path, i)
		if !v.require(d.Kind == yaml.MappingNode, at, "each decision must be a mapping") {
			continue
		}
		if date := field(d, "date"); !isDateLike(date) {
			v.fail(at, "decision.date must be YYYY-MM-DD or YAML date, got %s", describe(date))
		}
		v.require(nonEmptyString(field(d, "what")), at, "decision.what must be non-empty string")
		v.require(isString(field(d, "why")), at, "decision.why must be string (can be empty)")
	}
}

func (v *deltaValidator) nextActions(n *yaml.Node, path string) {
	if !v.require(n.Kind == yaml.SequenceNode, path, "next_actions must be a list") {
		return
	}
	for i, a := range n.Content {
		at := fmt.Sprintf("%s[%d]", path, i)
		if !v.require(a.Kind == yaml.MappingNode, at, "each next_action must be a mapping") {
			continue
		}
		who := field(a, "who")
		v.require(isString(who) && (who.Value == "me" || who.Value == "assistant"), at,
			"next_action.who must be 'me' or 'assistant'")
		v.require(nonEmptyString(field(a, "what")), at, "next_action.what must be non-empty string")
		if due := field(a, "due"); !isDateLike(due) {
			v.fail(at, "next_action.due must be YYYY-MM-DD or YAML date, got %s", describe(due))
		}
	}
}

func (v *deltaValidator) risks(n *yaml.Node, path string) {
	if !v.require(n.Kind == yaml.SequenceNode, path, "risks must be a list") {
		return
	}
	for i, r := range n.Content {
		v.require(nonEmptyString(r), fmt.Sprintf("%s[%d]", path, i), "each risk must be a non-empty string")
	}
}

// field returns the value node for key in a mapping, or nil.
func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func isString(n *yaml.Node) bool {
	return n != nil && n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}

func nonEmptyString(n *yaml.Node) bool {
	return isString(n) && strings.TrimSpace(n.Value) != ""
}

// isDateLike accepts YAML timestamps and quoted YYYY-MM-DD strings.
func isDateLike(n *yaml.Node) bool {
	if n == nil || n.Kind != yaml.ScalarNode {
		return false
	}
	switch n.ShortTag() {
	case "!!timestamp":
		return true
	case "!!str":
		return dateRe.MatchString(n.Value)
	}
	return false
}

func describe(n *yaml.Node) string {
	if n == nil {
		return "missing"
	}
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	}
	return fmt.Sprintf("%s=%q", strings.TrimPrefix(n.ShortTag(), "!!"), n.Value)
}
