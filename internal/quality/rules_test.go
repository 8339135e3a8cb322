package quality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harmonize-cli/internal/model"
)

const rulesDoc = `rules:
  - id: DH-001
    name: required fields present
    kind: required_non_null
    severity: fail
  - id: DH-007
    name: currency is a valid code
    kind: valid_currency_code
    field: currency
    severity: warn
    auto_fix: GBP
  - id: DH-099
    name: disabled rule
    kind: known_partner
    severity: warn
    enabled: false
`

func TestLoadRules_DropsDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesDoc), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "DH-001", rules[0].ID)
	assert.Equal(t, KindRequiredNonNull, rules[0].Kind)
	assert.Equal(t, "GBP", rules[1].AutoFix)
	assert.Equal(t, model.SeverityWarn, rules[1].Severity)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality: read rules")
}

func TestDefaultRules_CurrencyFallback(t *testing.T) {
	rules := DefaultRules("")
	var cur *Rule
	for i := range rules {
		if rules[i].Kind == KindValidCurrencyCode {
			cur = &rules[i]
		}
	}
	require.NotNil(t, cur)
	assert.Equal(t, "USD", cur.AutoFix)
}
