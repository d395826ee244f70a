package ruleset

import (
	"fmt"

	"github.com/crewportal/ruletune/internal/alerting/service/report"
)

// Patch applies report entries to a rule table document and returns the new bytes.
//
// Each entry is applied whole or skipped whole: unknown keys, invalid values, fields the
// rule does not have and non-plain scalars become warnings and leave that rule untouched.
// Only values that actually differ are rewritten; when nothing differs the returned bytes
// are the input and ApplyResult.Written stays false. The patched document is re-parsed and
// validated before it is returned, and an error here means the input must not be replaced.
func Patch(data []byte, opts []report.Optimization) ([]byte, *ApplyResult, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, nil, err
	}
	if _, err := doc.table(); err != nil {
		return nil, nil, err
	}

	res := &ApplyResult{}
	var edits []edit
	seen := make(map[string]struct{}, len(opts))
	for _, opt := range opts {
		key := NormalizeKey(opt.Key)
		if _, dup := seen[key]; dup {
			res.Warnings = append(res.Warnings, Warning{Key: key, Err: ErrDuplicateKey})
			continue
		}
		seen[key] = struct{}{}

		entryEdits, change, err := doc.planEntry(key, opt.NewRule)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Key: key, Err: err})
			continue
		}
		if len(entryEdits) == 0 {
			res.Unchanged = append(res.Unchanged, key)
			continue
		}
		edits = append(edits, entryEdits...)
		res.Changes = append(res.Changes, change)
	}
	if len(edits) == 0 {
		return data, res, nil
	}

	out := splice(data, edits)
	if err := verifyPatched(out, res.Changes); err != nil {
		return nil, nil, err
	}
	res.Written = true
	return out, res, nil
}

// planEntry computes the edits one report entry needs without touching the document.
func (d *document) planEntry(key string, nr report.NewRule) ([]edit, Change, error) {
	change := Change{Key: key}
	body, ok := d.ruleNode(key)
	if !ok {
		return nil, change, ErrUnknownKey
	}
	if err := validateValues(key, nr.Threshold, nr.TimeoutHours); err != nil {
		return nil, change, err
	}
	current, err := d.rule(key, body)
	if err != nil {
		return nil, change, err
	}

	var edits []edit
	change.OldThreshold, change.NewThreshold = current.Threshold, nr.Threshold
	if !sameValue(current.Threshold, nr.Threshold) {
		e, err := d.replaceScalar(fieldNode(body, thresholdField), nr.Threshold)
		if err != nil {
			return nil, change, fmt.Errorf("%s: %w", thresholdField, err)
		}
		edits = append(edits, e)
	}

	change.OldTimeoutHours, change.NewTimeoutHours = current.TimeoutHours, current.TimeoutHours
	if nr.TimeoutHours != nil {
		if current.TimeoutHours == nil {
			return nil, change, fmt.Errorf("%w: %s", ErrMissingField, timeoutHoursField)
		}
		next := *nr.TimeoutHours
		change.NewTimeoutHours = &next
		if !sameValue(*current.TimeoutHours, next) {
			e, err := d.replaceScalar(fieldNode(body, timeoutHoursField), next)
			if err != nil {
				return nil, change, fmt.Errorf("%s: %w", timeoutHoursField, err)
			}
			edits = append(edits, e)
		}
	}
	return edits, change, nil
}

func verifyPatched(out []byte, changes []Change) error {
	t, err := ParseTable(out)
	if err != nil {
		return fmt.Errorf("patched rule table does not parse: %w", err)
	}
	for _, c := range changes {
		r, ok := t.Get(c.Key)
		if !ok || !sameValue(r.Threshold, c.NewThreshold) {
			return fmt.Errorf("%w: patched %s threshold did not read back", ErrMalformedRules, c.Key)
		}
		if c.NewTimeoutHours != nil && (r.TimeoutHours == nil || !sameValue(*r.TimeoutHours, *c.NewTimeoutHours)) {
			return fmt.Errorf("%w: patched %s timeoutHours did not read back", ErrMalformedRules, c.Key)
		}
	}
	return nil
}
