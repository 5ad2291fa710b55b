package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DirectJSON(t *testing.T) {
	out := Parse(`  {"score": 7, "issues": ["a", "b"]}  `)

	require.True(t, out.IsStructured())
	assert.Equal(t, "direct_json", out.Strategy)
	assert.Equal(t, int64(7), out.Get("score").Int())
	assert.Equal(t, "b", out.Get("issues.1").String())

	m, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "issues")
}

func TestParse_FencedJSON(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"language\": \"go\"}\n```\nThanks."
	out := Parse(text)

	require.True(t, out.IsStructured())
	assert.Equal(t, "fenced_json", out.Strategy)
	assert.Equal(t, "go", out.Get("language").String())
	assert.Equal(t, text, out.Raw)
}

func TestParse_BraceSpan(t *testing.T) {
	out := Parse(`Result: {"ok": true, "nested": {"n": 1}} done`)

	require.True(t, out.IsStructured())
	assert.Equal(t, "brace_span", out.Strategy)
	assert.True(t, out.Get("ok").Bool())
	assert.Equal(t, int64(1), out.Get("nested.n").Int())
}

func TestParse_FallsThroughInvalidFence(t *testing.T) {
	text := "```json\nnot json\n```\n{\"fallback\": 1}"
	out := Parse(text)

	require.True(t, out.IsStructured())
	assert.Equal(t, "brace_span", out.Strategy)
}

func TestParse_Unstructured(t *testing.T) {
	tests := []string{
		"",
		"plain prose answer",
		"42",
		`"just a string"`,
		"{ broken json",
	}
	for _, text := range tests {
		out := Parse(text)
		assert.False(t, out.IsStructured(), text)
		assert.Equal(t, Unstructured, out.Kind)
		assert.Nil(t, out.Value)
		assert.Equal(t, text, out.Raw)
		assert.False(t, out.Get("anything").Exists())
	}
}

func TestParse_YAMLBlock(t *testing.T) {
	text := "Workflow:\n```yaml\nname: ci\non: push\njobs:\n  build:\n    runs-on: ubuntu-latest\n```\n"
	out := Parse(text, AllStrategies()...)

	require.True(t, out.IsStructured())
	assert.Equal(t, "yaml_block", out.Strategy)
	m := out.Value.(map[string]any)
	assert.Equal(t, "ci", m["name"])
	assert.Contains(t, m, "jobs")
}

func TestParse_CodeBlocks(t *testing.T) {
	text := "Try this:\n```Go\nfmt.Println(1)\n```\nand\n```\necho hi\n```"
	out := Parse(text, AllStrategies()...)

	require.True(t, out.IsStructured())
	assert.Equal(t, "code_blocks", out.Strategy)
	blocks := out.Value.([]CodeBlock)
	require.Len(t, blocks, 2)
	assert.Equal(t, CodeBlock{Language: "go", Code: "fmt.Println(1)"}, blocks[0])
	assert.Equal(t, "", blocks[1].Language)
}

func TestParse_ListItems(t *testing.T) {
	text := "Recommendations:\n- add tests\n* pin versions\n1. enable caching\n2) lint"
	out := Parse(text, AllStrategies()...)

	require.True(t, out.IsStructured())
	assert.Equal(t, "list_items", out.Strategy)
	assert.Equal(t, []string{"add tests", "pin versions", "enable caching", "lint"}, out.Value)
}

func TestParse_OrderMatters(t *testing.T) {
	text := "- item\n{\"a\": 1}"

	out := Parse(text, ListItems{}, BraceSpan{})
	assert.Equal(t, "list_items", out.Strategy)

	out = Parse(text, BraceSpan{}, ListItems{})
	assert.Equal(t, "brace_span", out.Strategy)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "structured", Structured.String())
	assert.Equal(t, "unstructured", Unstructured.String())
}
