package ruleset

import "errors"

var (
	// ErrMalformedRules means the rule table document cannot be parsed or violates its schema.
	ErrMalformedRules = errors.New("malformed rule table")
	// ErrInvalidRule means a rule or a proposed value breaks the threshold/timeout invariants.
	ErrInvalidRule = errors.New("invalid alert rule")
	// ErrUnknownKey means a report entry names a rule the table does not define.
	ErrUnknownKey = errors.New("rule key not found")
	// ErrMissingField means a report entry sets a field the rule does not have. Fields are never added.
	ErrMissingField = errors.New("field absent in rule table")
	// ErrUnsupportedValue means the field is not a plain numeric scalar and cannot be patched in place.
	ErrUnsupportedValue = errors.New("field is not a plain numeric scalar")
	// ErrDuplicateKey means the report carries more than one entry for the same rule.
	ErrDuplicateKey = errors.New("duplicate report entry")
)
