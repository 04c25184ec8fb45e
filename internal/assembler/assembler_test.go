package assembler

import (
	"strings"
	"testing"

	"github.com/loceval/loceval/internal/models"
)

func section(id, typeID, name, content string, order int) models.PromptSection {
	return models.PromptSection{ID: id, TypeID: typeID, Name: name, Content: content, Order: &order}
}

func TestAssembleDeterministic(t *testing.T) {
	sections := []models.PromptSection{
		section("1", "role", "role", "You are a translator", 2),
		section("2", "instructions", "instructions", "Do X", 1),
		{ID: "3", TypeID: "custom", Name: "Glossary Notes", Content: "check terms"},
	}
	first := Assemble(sections, "en")
	for i := 0; i < 5; i++ {
		if got := Assemble(sections, "en"); got != first {
			t.Fatalf("Assemble not deterministic on call %d", i)
		}
	}
}

func TestAssembleBoilerplateFirst(t *testing.T) {
	sections := []models.PromptSection{
		section("1", "role", "role", "You are helpful", 2),
		section("2", "instructions", "instructions", "Do X", 1),
	}
	out := Assemble(sections, "en")

	if !strings.HasPrefix(out, "<OUTPUT_REQUIREMENTS>") {
		t.Errorf("output does not start with the output-requirements block:\n%s", out)
	}
	if !strings.Contains(out, "<your_task>") {
		t.Error("output missing task-info block")
	}

	idxInstr := strings.Index(out, "<Instructions>")
	idxRole := strings.Index(out, "<Role_Definition>")
	if idxInstr == -1 || idxRole == -1 {
		t.Fatalf("missing section blocks: instructions=%d role=%d", idxInstr, idxRole)
	}
	if idxInstr > idxRole {
		t.Error("sections not sorted by order: Instructions should precede Role_Definition")
	}
}

func TestAssembleOrderNormalization(t *testing.T) {
	// Sections without an explicit order take their position in the input
	// list, so A stays before B.
	a := models.PromptSection{ID: "a", TypeID: "custom", Name: "Part A", Content: "aaa"}
	b := models.PromptSection{ID: "b", TypeID: "custom", Name: "Part B", Content: "bbb"}
	out := Assemble([]models.PromptSection{a, b}, "en")

	idxA := strings.Index(out, "<Part_A>")
	idxB := strings.Index(out, "<Part_B>")
	if idxA == -1 || idxB == -1 {
		t.Fatalf("missing custom blocks in output:\n%s", out)
	}
	if idxA > idxB {
		t.Error("input order not preserved for sections without explicit order")
	}
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	sections := []models.PromptSection{
		{ID: "a", TypeID: "role", Name: "role", Content: "x"},
		{ID: "b", TypeID: "context", Name: "context", Content: "y"},
	}
	Assemble(sections, "en")
	if sections[0].Order != nil || sections[1].Order != nil {
		t.Error("Assemble mutated the caller's sections")
	}
}

func TestUnknownTypeNoNameUsesRawType(t *testing.T) {
	out := Assemble([]models.PromptSection{{ID: "x", TypeID: "unknown", Content: "abc"}}, "en")
	if !strings.Contains(out, "<unknown>abc</unknown>") {
		t.Errorf("expected raw type tag fallback, got:\n%s", out)
	}
}

func TestUnknownTypeWithNameSanitizesName(t *testing.T) {
	out := Assemble([]models.PromptSection{section("x", "unknown", "unknown", "abc", 0)}, "en")
	if !strings.Contains(out, "<unknown>abc</unknown>") {
		t.Errorf("expected <unknown>abc</unknown>, got:\n%s", out)
	}
}

func TestCustomSectionUsesSanitizedName(t *testing.T) {
	out := Assemble([]models.PromptSection{{ID: "1", TypeID: "custom", Name: "My Special Part", Content: "hello"}}, "en")
	if !strings.Contains(out, "<My_Special_Part>hello</My_Special_Part>") {
		t.Errorf("expected sanitized custom tag, got:\n%s", out)
	}
}

func TestAssembleEmptySections(t *testing.T) {
	out := Assemble(nil, "en")
	if !strings.Contains(out, "<OUTPUT_REQUIREMENTS>") || !strings.Contains(out, "<your_task>") {
		t.Errorf("boilerplate blocks missing for empty section list:\n%s", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("trailing separator artifact on empty section list")
	}
}

func TestAssembleForEvaluationKnowsExtraTags(t *testing.T) {
	sections := []models.PromptSection{
		section("1", "output", "output", "wrap it", 0),
		section("2", "constraints", "constraints", "keep tags", 1),
	}
	out := AssembleForEvaluation(sections, "en")
	if !strings.Contains(out, "<Output_Requirements>wrap it</Output_Requirements>") {
		t.Error("output typeId not mapped in evaluation variant")
	}
	if !strings.Contains(out, "<Constraints>keep tags</Constraints>") {
		t.Error("constraints typeId not mapped in evaluation variant")
	}
}

func TestSanitizeTag(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"My Special Part", "My_Special_Part"},
		{"  spaced  out  ", "spaced_out"},
		{"9lives", "C_9lives"},
		{"___", "Custom_Section"},
		{"", "Custom_Section"},
		{"a--b++c", "a_b_c"},
		{"Ünïcode name", "n_code_name"},
	}
	for _, tc := range cases {
		if got := SanitizeTag(tc.in); got != tc.want {
			t.Errorf("SanitizeTag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeTagIdempotent(t *testing.T) {
	inputs := []string{
		"My Special Part", "9lives", "___", "", "a--b++c", "C_", "already_clean",
		"trailing_", "_leading", "12 34", "Ünïcode name", "Custom_Section",
	}
	for _, in := range inputs {
		once := SanitizeTag(in)
		twice := SanitizeTag(once)
		if once != twice {
			t.Errorf("SanitizeTag not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestBuildUserPromptSubstitution(t *testing.T) {
	got := BuildUserPrompt(UserPromptInput{
		SourceText:       "你好",
		FollowingContext: "再见",
		TargetLanguage:   "EN",
	})
	checks := []string{
		"<source_text>你好</source_text>",
		"<previous_sentence_context>N/A</previous_sentence_context>",
		"<following_sentence_context>再见</following_sentence_context>",
		"<target_language>EN</target_language>",
		"<terminology>[]</terminology>",
		"<similar_translations>[]</similar_translations>",
		"<additional_instructions>N/A</additional_instructions>",
	}
	for _, want := range checks {
		if !strings.Contains(got, want) {
			t.Errorf("user prompt missing %q:\n%s", want, got)
		}
	}
}

func TestExtractTranslatedText(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		want      string
		wantFound bool
	}{
		{"tagged", "noise <translated_text> Olá </translated_text> more", "Olá", true},
		{"bare", "just a plain answer", "just a plain answer", false},
		{"open only", "<translated_text>unclosed", "<translated_text>unclosed", false},
		{"empty inner", "<translated_text></translated_text>", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := ExtractTranslatedText(tc.raw)
			if got != tc.want || found != tc.wantFound {
				t.Errorf("ExtractTranslatedText(%q) = (%q, %v), want (%q, %v)", tc.raw, got, found, tc.want, tc.wantFound)
			}
		})
	}
}
