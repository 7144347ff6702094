package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	candidateAnswerRegex = regexp.MustCompile(`(?i)</?\s*candidate-(answer|code)\b[^>]*>`)
)

const maxAnswerRunes = 10000

// Variant represents an evaluation prompt variant.
type Variant string

const (
	// Strict grades like a senior interviewer for a competitive role.
	Strict Variant = "strict"
	// Standard is the default variant.
	Standard Variant = "standard"
	// Lenient grades practice interviews for junior candidates.
	Lenient Variant = "lenient"
)

var validVariants = map[Variant]bool{
	Strict:   true,
	Standard: true,
	Lenient:  true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	evalTemplates map[Variant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	Context  string
	Question string
	Answer   string
	Code     string
}

func load() error {
	loadOnce.Do(func() {
		evalTemplates = make(map[Variant]*template.Template)
		for v := range validVariants {
			name := "templates/eval_" + string(v) + ".txt"
			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New("eval").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildEvalPrompt renders the evaluation prompt for one answer.
func BuildEvalPrompt(variant Variant, data EvalData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.Answer = sanitize(data.Answer, "[No answer provided]")
	data.Code = sanitize(data.Code, "")
	if strings.TrimSpace(data.Context) == "" {
		data.Context = "general interview"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips tags that could break out of the answer block and caps its length.
func sanitize(s, empty string) string {
	s = candidateAnswerRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return empty
	}
	if utf8.RuneCountInString(s) > maxAnswerRunes {
		runes := []rune(s)
		s = string(runes[:maxAnswerRunes]) + "\n\n[Truncated due to length]"
	}
	return s
}
