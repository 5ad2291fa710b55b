// Package tokens estimates token counts and content complexity without a
// real tokenizer. Results are heuristics for routing and quota decisions
// and must never be used to reconcile billing.
package tokens

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultCharsPerToken is the ratio used for unknown model families.
	DefaultCharsPerToken = 4.0

	// CodeCharsPerToken is used for source code regardless of model family;
	// code tokenizes more densely than prose.
	CodeCharsPerToken = 3.0

	// MessageRoleTokens, MessageFormatTokens and ConversationTokens model the
	// non-content cost of chat formats.
	MessageRoleTokens   = 2
	MessageFormatTokens = 4
	ConversationTokens  = 3
)

// charsPerToken by model family.
var charsPerToken = map[string]float64{
	"gemini": 4,
	"gpt":    4,
	"claude": 3.5,
}

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// complexityMarker adds Weight (in hundredths) when Pattern matches.
type complexityMarker struct {
	Pattern *regexp.Regexp
	Weight  int
}

var complexityMarkers = []complexityMarker{
	{regexp.MustCompile(`(?i)\bclass\b`), 10},
	{regexp.MustCompile(`(?i)\binterface\b`), 10},
	{regexp.MustCompile(`(?i)\basync\b`), 5},
	{regexp.MustCompile(`(?i)\bawait\b`), 5},
	{regexp.MustCompile(`(?i)\bfunction\b`), 5},
	{regexp.MustCompile(`=>`), 5},
	{regexp.MustCompile(`(?i)\btry\b.*\bcatch\b`), 10},
	{regexp.MustCompile(`(?i)\bimport\b.*\bfrom\b`), 5},
}

var (
	commentLine = regexp.MustCompile(`(?m)^\s*(#|//|/\*|\*)`)

	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bfunction\b`),
		regexp.MustCompile(`\bclass\b`),
		regexp.MustCompile(`\bimport\b`),
		regexp.MustCompile(`\bconst\b`),
		regexp.MustCompile(`\blet\b`),
		regexp.MustCompile(`\bvar\b`),
		regexp.MustCompile(`\bdef\b`),
		regexp.MustCompile(`\breturn\b`),
		regexp.MustCompile(`\{.*\}`),
	}

	codeExtensions = map[string]bool{
		".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
		".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
		".cs": true, ".go": true, ".rs": true, ".rb": true, ".php": true,
		".swift": true, ".kt": true, ".scala": true, ".sh": true,
		".bash": true, ".zsh": true, ".ps1": true,
	}

	priorityNames = []string{"main", "index", "app", "server"}
)

// Estimator estimates tokens for one model family.
type Estimator struct {
	model         string
	family        string
	charsPerToken float64
}

// NewEstimator creates an Estimator for the family of model.
func NewEstimator(model string) *Estimator {
	family := ModelFamily(model)
	ratio, ok := charsPerToken[family]
	if !ok {
		ratio = DefaultCharsPerToken
	}
	return &Estimator{
		model:         model,
		family:        family,
		charsPerToken: ratio,
	}
}

// ModelFamily maps a model name to gemini, gpt, claude or default.
func ModelFamily(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gemini"):
		return "gemini"
	case strings.Contains(lower, "gpt"):
		return "gpt"
	case strings.Contains(lower, "claude"):
		return "claude"
	}
	return "default"
}

// Family returns the model family of the estimator.
func (e *Estimator) Family() string {
	return e.family
}

// CharsPerToken returns the prose ratio of the estimator.
func (e *Estimator) CharsPerToken() float64 {
	return e.charsPerToken
}

// Estimate returns the estimated token count of text. Whitespace-heavy text
// is inflated by up to 10%.
func (e *Estimator) Estimate(text string, isCode bool) int {
	if text == "" {
		return 0
	}

	ratio := e.charsPerToken
	if isCode {
		ratio = CodeCharsPerToken
	}

	length := utf8.RuneCountInString(text)
	whitespace := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			whitespace++
		}
	}

	estimated := float64(length) / ratio
	estimated *= 1 + (float64(whitespace)/float64(length))*0.1

	return int(estimated)
}

// EstimateMessages returns the token estimate of a chat conversation.
func (e *Estimator) EstimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += MessageRoleTokens
		total += e.Estimate(m.Content, false)
		total += MessageFormatTokens
	}
	return total + ConversationTokens
}

// EstimateCodeFile estimates a file, detecting code by extension or, when
// path is empty, by common code patterns.
func (e *Estimator) EstimateCodeFile(content, path string) int {
	isCode := false
	if path != "" {
		isCode = codeExtensions[strings.ToLower(filepath.Ext(path))]
	} else {
		for _, p := range codePatterns {
			if p.MatchString(content) {
				isCode = true
				break
			}
		}
	}
	return e.Estimate(content, isCode)
}

// RepositoryEstimate is the result of EstimateRepository.
type RepositoryEstimate struct {
	TotalTokens   int            `json:"total_tokens"`
	FileCount     int            `json:"file_count"`
	FileEstimates map[string]int `json:"file_estimates"`
}

// EstimateRepository estimates up to maxFiles files (sorted by path), with
// entry-point files processed first.
func (e *Estimator) EstimateRepository(files map[string]string, maxFiles int) RepositoryEstimate {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if maxFiles > 0 && len(paths) > maxFiles {
		paths = paths[:maxFiles]
	}

	var priority, other []string
	for _, p := range paths {
		if isPriorityFile(p) {
			priority = append(priority, p)
		} else {
			other = append(other, p)
		}
	}

	result := RepositoryEstimate{FileEstimates: make(map[string]int, len(paths))}
	for _, p := range append(priority, other...) {
		n := e.EstimateCodeFile(files[p], p)
		result.FileEstimates[p] = n
		result.TotalTokens += n
	}
	result.FileCount = len(result.FileEstimates)
	return result
}

func isPriorityFile(path string) bool {
	lower := strings.ToLower(path)
	for _, name := range priorityNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// Complexity scores content in [0,1]. Higher scores suggest the request
// benefits from a more capable model.
func Complexity(content string) float64 {
	if content == "" {
		return 0
	}

	// Scored in hundredths so thresholds compare exactly.
	points := 0

	length := utf8.RuneCountInString(content)
	if length > 10000 {
		points += 20
	} else if length > 5000 {
		points += 10
	}

	for _, m := range complexityMarkers {
		if m.Pattern.MatchString(content) {
			points += m.Weight
		}
	}

	lines := strings.Split(content, "\n")
	maxIndent := 0
	for _, line := range lines {
		indent := utf8.RuneCountInString(line) - utf8.RuneCountInString(strings.TrimLeftFunc(line, unicode.IsSpace))
		if indent > maxIndent {
			maxIndent = indent
		}
	}
	if maxIndent > 16 {
		points += 15
	} else if maxIndent > 8 {
		points += 10
	}

	comments := len(commentLine.FindAllStringIndex(content, -1))
	if float64(comments)/float64(len(lines)) > 0.2 {
		points -= 5
	}

	if points < 0 {
		points = 0
	}
	if points > 100 {
		points = 100
	}
	return float64(points) / 100
}

// EstimateTokens estimates prose tokens with the default ratio.
func EstimateTokens(text string) int {
	return NewEstimator("").Estimate(text, false)
}
