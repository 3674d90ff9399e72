package patterns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/llm"
	"guardian/internal/types"
)

func TestGenerate_ParsesFencedObject(t *testing.T) {
	fake := llm.NewFakeClient("```json\n" + `{
  "No hardcoded secrets": ["Hardcoded database credentials", "API keys in source"],
  "Configurable UI": ["Hardcoded string literals inside JSX tags"]
}` + "\n```")
	set, err := New(fake, 0, nil).Generate(context.Background(), "brief text")
	require.NoError(t, err)
	assert.Equal(t, []string{"Configurable UI", "No hardcoded secrets"}, set.Labels())
	assert.Equal(t, 3, set.Len())
	assert.Contains(t, fake.Calls()[0], "brief text")
}

func TestGenerate_CoercesAndQuarantines(t *testing.T) {
	fake := llm.NewFakeClient(`{
  "A": ["plain", {"pattern": "from dict"}, 42, null, ""],
  "B": "single string",
  "C": [],
  "": ["no label"]
}`)
	set, err := New(fake, 0, nil).Generate(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, types.GuidelinePatternSet{
		"A": {"plain", "from dict", "42"},
		"B": {"single string"},
	}, set)
}

func TestGenerate_Failures(t *testing.T) {
	cases := map[string]*llm.FakeClient{
		"empty":       llm.NewFakeClient("   "),
		"prose":       llm.NewFakeClient("I cannot help with that."),
		"no patterns": llm.NewFakeClient(`{"A": [], "B": [""]}`),
		"array":       llm.NewFakeClient(`["x"]`),
		"call error":  llm.NewFakeClient("", llm.FakeRule{Contains: "Guidelines", Err: errors.New("quota")}),
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(fake, 0, nil).Generate(context.Background(), "b")
			assert.ErrorIs(t, err, ErrPatternGenerationFailed)
		})
	}
}

func TestExtensions_Sanitised(t *testing.T) {
	fake := llm.NewFakeClient("```json\n[\"**/*.jsx\", \"py\", \".JS\", \"src/*.ts\", \"*\", 3, \".py\"]\n```")
	exts, err := New(fake, 0, nil).Extensions(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{".jsx", ".py", ".js"}, exts)
}

func TestRefine_CapsAndCoerces(t *testing.T) {
	fake := llm.NewFakeClient(`{"refined_patterns": ["os.environ fallback literals", {"description": "passwords in settings.py"}, 5]}`)
	var vs []types.Violation
	for i := 0; i < 15; i++ {
		vs = append(vs, types.Violation{File: fmt.Sprintf("f%02d.py", i), Line: 1, Explanation: "e", RuleViolated: "R"})
	}
	got, err := New(fake, 10, nil).Refine(context.Background(), vs)
	require.NoError(t, err)
	assert.Equal(t, []string{"os.environ fallback literals", "passwords in settings.py", "5"}, got)

	prompt := fake.Calls()[0]
	assert.Contains(t, prompt, "f09.py")
	assert.NotContains(t, prompt, "f10.py")
	assert.True(t, strings.Contains(prompt, `"rule_violated": "R"`))
}

func TestRefine_Unparseable(t *testing.T) {
	_, err := New(llm.NewFakeClient("nope"), 0, nil).Refine(context.Background(), []types.Violation{{File: "a", Line: 1, Explanation: "e"}})
	assert.ErrorIs(t, err, llm.ErrInvalidJSON)
}
