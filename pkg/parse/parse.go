// Package parse turns free-text model output into structured values.
//
// A Parse call tries an ordered list of strategies; the first one that
// recognizes the text wins and yields a Structured outcome. When none
// does, the outcome is Unstructured and carries the raw text.
package parse

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Kind tells Structured and Unstructured outcomes apart.
type Kind int

const (
	Unstructured Kind = iota
	Structured
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "unstructured"
}

// Outcome is the result of Parse.
type Outcome struct {
	Kind     Kind
	Value    any    // decoded value, nil when Unstructured
	Strategy string // name of the strategy that matched
	Raw      string // original text
	JSON     string // matched JSON document, JSON strategies only
}

// IsStructured reports whether a strategy recognized the text.
func (o Outcome) IsStructured() bool {
	return o.Kind == Structured
}

// Get queries the matched JSON document with a gjson path. It returns an
// empty result for non-JSON outcomes.
func (o Outcome) Get(path string) gjson.Result {
	if o.JSON == "" {
		return gjson.Result{}
	}
	return gjson.Get(o.JSON, path)
}

// Strategy extracts a value from text. Extract returns ok=false when the
// text does not match.
type Strategy interface {
	Name() string
	Extract(text string) (value any, doc string, ok bool)
}

// CodeBlock is a fenced code block.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

var (
	fencedBlock  = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\n(.*?)```")
	fencedJSON   = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedYAML   = regexp.MustCompile("(?s)```ya?ml\\s*(.*?)```")
	listItem     = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	defaultOrder = []Strategy{DirectJSON{}, FencedJSON{}, BraceSpan{}}
)

// JSONStrategies returns the JSON strategies in order: whole text, fenced
// json block, outermost brace span.
func JSONStrategies() []Strategy {
	return append([]Strategy(nil), defaultOrder...)
}

// AllStrategies returns the JSON strategies followed by the YAML, code
// block and list fallbacks.
func AllStrategies() []Strategy {
	return append(JSONStrategies(), YAMLBlock{}, CodeBlocks{}, ListItems{})
}

// Parse runs strategies in order and returns the first match. With no
// strategies, the JSON strategies are used.
func Parse(text string, strategies ...Strategy) Outcome {
	if len(strategies) == 0 {
		strategies = defaultOrder
	}
	for _, s := range strategies {
		if v, doc, ok := s.Extract(text); ok {
			return Outcome{
				Kind:     Structured,
				Value:    v,
				Strategy: s.Name(),
				Raw:      text,
				JSON:     doc,
			}
		}
	}
	return Outcome{Kind: Unstructured, Raw: text}
}

// decodeJSON accepts only JSON objects and arrays.
func decodeJSON(doc string) (any, bool) {
	doc = strings.TrimSpace(doc)
	if doc == "" || !gjson.Valid(doc) {
		return nil, false
	}
	r := gjson.Parse(doc)
	if !r.IsObject() && !r.IsArray() {
		return nil, false
	}
	return r.Value(), true
}

// DirectJSON matches text that is a JSON document as a whole.
type DirectJSON struct{}

func (DirectJSON) Name() string { return "direct_json" }

func (DirectJSON) Extract(text string) (any, string, bool) {
	v, ok := decodeJSON(text)
	if !ok {
		return nil, "", false
	}
	return v, strings.TrimSpace(text), true
}

// FencedJSON matches the first ```json block holding valid JSON.
type FencedJSON struct{}

func (FencedJSON) Name() string { return "fenced_json" }

func (FencedJSON) Extract(text string) (any, string, bool) {
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		if v, ok := decodeJSON(m[1]); ok {
			return v, strings.TrimSpace(m[1]), true
		}
	}
	return nil, "", false
}

// BraceSpan matches the span from the first '{' to the last '}'.
type BraceSpan struct{}

func (BraceSpan) Name() string { return "brace_span" }

func (BraceSpan) Extract(text string) (any, string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, "", false
	}
	doc := text[start : end+1]
	v, ok := decodeJSON(doc)
	if !ok {
		return nil, "", false
	}
	return v, doc, true
}

// YAMLBlock matches the first ```yaml block that decodes to a mapping.
type YAMLBlock struct{}

func (YAMLBlock) Name() string { return "yaml_block" }

func (YAMLBlock) Extract(text string) (any, string, bool) {
	for _, m := range fencedYAML.FindAllStringSubmatch(text, -1) {
		var v map[string]any
		if err := yaml.Unmarshal([]byte(m[1]), &v); err == nil && len(v) > 0 {
			return v, "", true
		}
	}
	return nil, "", false
}

// CodeBlocks matches any fenced code blocks and returns them all.
type CodeBlocks struct{}

func (CodeBlocks) Name() string { return "code_blocks" }

func (CodeBlocks) Extract(text string) (any, string, bool) {
	blocks := ExtractCodeBlocks(text)
	if len(blocks) == 0 {
		return nil, "", false
	}
	return blocks, "", true
}

// ListItems matches bullet or numbered list lines.
type ListItems struct{}

func (ListItems) Name() string { return "list_items" }

func (ListItems) Extract(text string) (any, string, bool) {
	items := ExtractListItems(text)
	if len(items) == 0 {
		return nil, "", false
	}
	return items, "", true
}

// ExtractCodeBlocks returns every fenced code block in text.
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, CodeBlock{
			Language: strings.ToLower(m[1]),
			Code:     strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// ExtractListItems returns the text of every bullet or numbered list line.
func ExtractListItems(text string) []string {
	matches := listItem.FindAllStringSubmatch(text, -1)
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}
