package ruleset

import (
	"fmt"
	"os"
)

// Table is a read-only, ordered view of the rule table.
type Table struct {
	order []string
	rules map[string]AlertRule
}

// ParseTable decodes and validates a rule table document.
func ParseTable(data []byte) (*Table, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.table()
}

// LoadTable reads and parses the rule table at path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table %s: %w", path, err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("rule table %s: %w", path, err)
	}
	return t, nil
}

func (d *document) table() (*Table, error) {
	keys := d.keys()
	t := &Table{order: make([]string, 0, len(keys)), rules: make(map[string]AlertRule, len(keys))}
	for _, key := range keys {
		if NormalizeKey(key) != key {
			return nil, fmt.Errorf("%w: rule key %q must be upper-case without surrounding spaces", ErrMalformedRules, key)
		}
		body, _ := d.ruleNode(key)
		r, err := d.rule(key, body)
		if err != nil {
			return nil, err
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		t.order = append(t.order, key)
		t.rules[key] = r
	}
	return t, nil
}

// Get returns the rule for key.
func (t *Table) Get(key string) (AlertRule, bool) {
	r, ok := t.rules[NormalizeKey(key)]
	return r, ok
}

// Keys returns rule keys in document order.
func (t *Table) Keys() []string {
	return append([]string(nil), t.order...)
}

// Rules returns every rule in document order.
func (t *Table) Rules() []AlertRule {
	out := make([]AlertRule, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rules[k])
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }
