package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const crewRules = `# Alert thresholds for the crew portal.
# Values are rewritten in place by ruletune-apply; keep them plain numbers.
rules:
  PENDING_REQUESTS:
    threshold: 10   # open leave and swap requests
    timeoutHours: 24
    description: "Crew requests awaiting approval {escalate after timeout}"

  PENDING_DOC_VALIDATIONS:
    threshold: 10
    timeoutHours: 48
    description: Uploaded licences and medicals awaiting validation

  FAILED_SWAPS:
    threshold: 3
    description: Roster swaps that failed in the last 24h
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert_rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
