package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/hybrid"
	"guardian/internal/types"
)

func sample() types.AuditResult {
	return hybrid.Aggregate("https://github.com/acme/shop", types.ModeHybrid,
		[]types.Violation{
			{File: "config/settings.py", Line: 1, ViolatingCode: "PASSWORD = 'x'", Explanation: "hardcoded password", RuleViolated: "Rule 1"},
			{File: "config/settings.py", Line: 31, Explanation: "hardcoded token", RuleViolated: "Rule 1"},
		},
		[]types.Violation{{File: "ui/app.jsx", Line: 1, Explanation: "literal string", RuleViolated: ""}},
		types.ScanStatistics{Pass1Files: 1, Pass1Violations: 2, Pass2Files: 1, Pass2Violations: 1},
		nil)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "txt": FormatText, "sarif": FormatSARIF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
	assert.Equal(t, ".sarif", FormatSARIF.Ext())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))

	var got types.AuditResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.TotalViolations)
	assert.Equal(t, 1, got.Statistics.Pass2Files)
	assert.Contains(t, buf.String(), `"scan_statistics"`)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, types.AuditResult{}))
	assert.Contains(t, buf.String(), `"violations": []`)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sample()))
	out := buf.String()
	assert.Contains(t, out, "Enhanced Hybrid Audit Results:")
	assert.Contains(t, out, "#### config/settings.py")
	assert.Contains(t, out, "line 31 [Rule 1]: hardcoded token")
	assert.Contains(t, out, "> PASSWORD = 'x'")
	assert.Contains(t, out, "[unspecified-rule]")
}

func TestWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatSARIF, sample()))

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				Locations []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine int `json:"startLine"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "guardian", run.Tool.Driver.Name)
	assert.Len(t, run.Tool.Driver.Rules, 2)
	require.Len(t, run.Results, 3)
	assert.Equal(t, "Rule 1", run.Results[1].RuleID)
	assert.Equal(t, "config/settings.py", run.Results[1].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 31, run.Results[1].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, "unspecified-rule", run.Results[2].RuleID)
}
