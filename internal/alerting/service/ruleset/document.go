package ruleset

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	rulesField        = "rules"
	thresholdField    = "threshold"
	timeoutHoursField = "timeoutHours"
	descriptionField  = "description"
)

// document is a parsed rule table that still remembers the raw bytes. Values are located
// through the node tree and rewritten by splicing the raw bytes at the node's mark, so
// comments and layout outside the touched numerals survive untouched.
type document struct {
	data       []byte
	rules      *yaml.Node
	lineStarts []int
}

func parseDocument(data []byte) (*document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRules, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrMalformedRules)
	}
	rules, err := mappingValue(doc.Content[0], rulesField)
	if err != nil {
		return nil, err
	}
	if rules == nil || rules.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %q must be a mapping of rule keys", ErrMalformedRules, rulesField)
	}
	if err := checkUniqueKeys(rules); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(rules.Content); i += 2 {
		key, body := rules.Content[i].Value, rules.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: rule %s must be a mapping", ErrMalformedRules, key)
		}
		if err := checkUniqueKeys(body); err != nil {
			return nil, fmt.Errorf("rule %s: %w", key, err)
		}
	}
	return &document{data: data, rules: rules, lineStarts: lineStarts(data)}, nil
}

// keys returns rule keys in document order.
func (d *document) keys() []string {
	out := make([]string, 0, len(d.rules.Content)/2)
	for i := 0; i+1 < len(d.rules.Content); i += 2 {
		out = append(out, d.rules.Content[i].Value)
	}
	return out
}

// ruleNode returns the mapping that holds the fields of key. Matching is exact on the
// whole key, so PENDING_REQUESTS never resolves to PENDING_REQUESTS_V2 or vice versa.
func (d *document) ruleNode(key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(d.rules.Content); i += 2 {
		if d.rules.Content[i].Value == key {
			return d.rules.Content[i+1], true
		}
	}
	return nil, false
}

// rule decodes the fields of one rule body.
func (d *document) rule(key string, body *yaml.Node) (AlertRule, error) {
	r := AlertRule{Key: key}
	th := fieldNode(body, thresholdField)
	if th == nil {
		return r, fmt.Errorf("%w: rule %s has no %s", ErrMalformedRules, key, thresholdField)
	}
	v, err := numericValue(th)
	if err != nil {
		return r, fmt.Errorf("%w: rule %s %s: %v", ErrMalformedRules, key, thresholdField, err)
	}
	r.Threshold = v
	if to := fieldNode(body, timeoutHoursField); to != nil && !isNull(to) {
		tv, err := numericValue(to)
		if err != nil {
			return r, fmt.Errorf("%w: rule %s %s: %v", ErrMalformedRules, key, timeoutHoursField, err)
		}
		r.TimeoutHours = &tv
	}
	if desc := fieldNode(body, descriptionField); desc != nil && desc.Kind == yaml.ScalarNode {
		r.Description = desc.Value
	}
	return r, nil
}

// edit replaces data[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// replaceScalar plans an in-place rewrite of a numeric scalar node.
func (d *document) replaceScalar(n *yaml.Node, v float64) (edit, error) {
	if n.Kind != yaml.ScalarNode || n.Style != 0 || n.Anchor != "" {
		return edit{}, ErrUnsupportedValue
	}
	start, err := d.offset(n.Line, n.Column)
	if err != nil {
		return edit{}, err
	}
	end := start + len(n.Value)
	if end > len(d.data) || !bytes.Equal(d.data[start:end], []byte(n.Value)) {
		return edit{}, fmt.Errorf("%w: raw text at line %d does not match %q", ErrUnsupportedValue, n.Line, n.Value)
	}
	return edit{start: start, end: end, text: formatNumber(v)}, nil
}

// offset converts a 1-based line and character column into a byte offset.
func (d *document) offset(line, column int) (int, error) {
	if line < 1 || line > len(d.lineStarts) || column < 1 {
		return 0, fmt.Errorf("%w: position %d:%d out of range", ErrMalformedRules, line, column)
	}
	off := d.lineStarts[line-1]
	for c := 1; c < column; c++ {
		if off >= len(d.data) || d.data[off] == '\n' {
			return 0, fmt.Errorf("%w: column %d past end of line %d", ErrMalformedRules, column, line)
		}
		_, size := utf8.DecodeRune(d.data[off:])
		off += size
	}
	return off, nil
}

// splice applies non-overlapping edits and returns a new buffer.
func splice(data []byte, edits []edit) []byte {
	sorted := append([]edit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })
	out := append([]byte(nil), data...)
	for _, e := range sorted {
		tail := append([]byte(e.text), out[e.end:]...)
		out = append(out[:e.start], tail...)
	}
	return out
}

func mappingValue(m *yaml.Node, name string) (*yaml.Node, error) {
	var found *yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			if found != nil {
				return nil, fmt.Errorf("%w: duplicate key %q", ErrMalformedRules, name)
			}
			found = m.Content[i+1]
		}
	}
	return found, nil
}

func fieldNode(body *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(body.Content); i += 2 {
		if body.Content[i].Value == name {
			return body.Content[i+1]
		}
	}
	return nil
}

func checkUniqueKeys(m *yaml.Node) error {
	seen := make(map[string]struct{}, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if k.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: non-scalar key at line %d", ErrMalformedRules, k.Line)
		}
		if _, dup := seen[k.Value]; dup {
			return fmt.Errorf("%w: duplicate key %q at line %d", ErrMalformedRules, k.Value, k.Line)
		}
		seen[k.Value] = struct{}{}
	}
	return nil
}

func numericValue(n *yaml.Node) (float64, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("expected a number, got node kind %d", n.Kind)
	}
	switch n.ShortTag() {
	case "!!int", "!!float":
	default:
		return 0, fmt.Errorf("expected a number, got %s %q", n.ShortTag(), n.Value)
	}
	var v float64
	if err := n.Decode(&v); err != nil {
		return 0, fmt.Errorf("parse number %q: %w", n.Value, err)
	}
	return v, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func lineStarts(data []byte) []int {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}
