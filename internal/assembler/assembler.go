// Package assembler renders structured prompt sections into the system prompt
// text sent to the completion generator, and fills the per-row user prompt.
// Everything here is pure: the same input always produces the same bytes.
package assembler

import (
	"regexp"
	"sort"
	"strings"

	"github.com/loceval/loceval/internal/models"
)

// Fixed English tag names for well-known section types. Any other type routes
// through the name-based sanitization path.
var baseTagNames = map[string]string{
	"role":         "Role_Definition",
	"context":      "Context",
	"instructions": "Instructions",
	"examples":     "Examples",
}

// The evaluation-time variant additionally recognizes output and constraints
// sections.
var evalTagNames = map[string]string{
	"role":         "Role_Definition",
	"context":      "Context",
	"instructions": "Instructions",
	"examples":     "Examples",
	"output":       "Output_Requirements",
	"constraints":  "Constraints",
}

var nonAlnum = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// SanitizeTag converts free-form user input into a safe ASCII tag name:
// whitespace is trimmed, every run of non-alphanumeric characters collapses to
// a single underscore, edge underscores are stripped, and a tag that would be
// empty or start with a non-letter gets the C_ prefix (or the Custom_Section
// fallback when nothing usable remains). SanitizeTag is idempotent.
func SanitizeTag(raw string) string {
	tag := strings.TrimSpace(raw)
	tag = nonAlnum.ReplaceAllString(tag, "_")
	tag = strings.Trim(tag, "_")
	if tag == "" {
		return "Custom_Section"
	}
	c := tag[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		tag = "C_" + tag
	}
	return tag
}

// Assemble renders sections plus the fixed boilerplate into one system-prompt
// string: boilerplate blocks first, then the sections in order, separated by
// blank lines, with no enclosing root tag.
func Assemble(sections []models.PromptSection, language string) string {
	return assemble(sections, language, baseTagNames)
}

// AssembleForEvaluation is Assemble with the extended tag map used when
// building the system prompt for an evaluation run.
func AssembleForEvaluation(sections []models.PromptSection, language string) string {
	return assemble(sections, language, evalTagNames)
}

func assemble(sections []models.PromptSection, language string, tagNames map[string]string) string {
	_ = language // only English tag names are defined; other languages fall back to them

	boilerplate := strings.TrimSpace(outputRequirementsTemplate) + "\n\n" + strings.TrimSpace(taskInfoTemplate)
	if len(sections) == 0 {
		return boilerplate
	}

	ordered := normalizeOrder(sections)
	chunks := make([]string, 0, len(ordered))
	for _, sec := range ordered {
		tag := tagName(sec, tagNames)
		chunks = append(chunks, "<"+tag+">"+sec.Content+"</"+tag+">")
	}

	return boilerplate + "\n\n" + strings.Join(chunks, "\n\n")
}

// normalizeOrder fills missing orders from list position, then sorts ascending
// by order. The sort is stable so equal orders keep their input position.
func normalizeOrder(sections []models.PromptSection) []models.PromptSection {
	ordered := make([]models.PromptSection, len(sections))
	copy(ordered, sections)
	for i := range ordered {
		if ordered[i].Order == nil {
			pos := i
			ordered[i].Order = &pos
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return *ordered[i].Order < *ordered[j].Order
	})
	return ordered
}

func tagName(sec models.PromptSection, tagNames map[string]string) string {
	if mapped, ok := tagNames[strings.ToLower(sec.TypeID)]; ok {
		return mapped
	}
	if sec.Name != "" {
		return SanitizeTag(sec.Name)
	}
	if sec.TypeID != "" {
		return sec.TypeID
	}
	return "Custom_Section"
}

// UserPromptInput carries the per-row values substituted into the task-info
// template. Empty context and instruction fields render as "N/A"; empty
// terminology and similar-translation fields render as empty JSON lists.
type UserPromptInput struct {
	SourceText             string
	PreviousContext        string
	FollowingContext       string
	TargetLanguage         string
	Terminology            string
	SimilarTranslations    string
	AdditionalInstructions string
}

// BuildUserPrompt fills the task-info template for one test row.
func BuildUserPrompt(in UserPromptInput) string {
	prompt := strings.TrimSpace(taskInfoTemplate)
	prompt = strings.ReplaceAll(prompt, "{SOURCE_TEXT}", in.SourceText)
	prompt = strings.ReplaceAll(prompt, "{PREVIOUS_CONTEXT}", orDefault(in.PreviousContext, "N/A"))
	prompt = strings.ReplaceAll(prompt, "{FOLLOWING_CONTEXT}", orDefault(in.FollowingContext, "N/A"))
	prompt = strings.ReplaceAll(prompt, "{TARGET_LANGUAGE}", orDefault(in.TargetLanguage, "Unknown"))
	prompt = strings.ReplaceAll(prompt, "{TERMINOLOGY}", orDefault(in.Terminology, "[]"))
	prompt = strings.ReplaceAll(prompt, "{SIMILAR_TRANSLATIONS}", orDefault(in.SimilarTranslations, "[]"))
	prompt = strings.ReplaceAll(prompt, "{ADDITIONAL_INSTRUCTIONS}", orDefault(in.AdditionalInstructions, "N/A"))
	return prompt
}

// ExtractTranslatedText pulls the inner text of the first
// <translated_text>...</translated_text> pair out of raw model output. When
// the tags are absent the whole raw output is returned and found is false, so
// callers never drop output silently.
func ExtractTranslatedText(raw string) (text string, found bool) {
	start := strings.Index(raw, TranslatedTextOpenTag)
	end := strings.Index(raw, TranslatedTextCloseTag)
	if start == -1 || end == -1 || end < start {
		return raw, false
	}
	inner := raw[start+len(TranslatedTextOpenTag) : end]
	return strings.TrimSpace(inner), true
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
