package assembler

// Fixed boilerplate rendered ahead of the user-defined sections. The task-info
// block carries the placeholders substituted per test row at evaluation time;
// in the system prompt it documents the structure the model will receive.

const outputRequirementsTemplate = `
<OUTPUT_REQUIREMENTS>
Produce exactly one final translation and wrap it in <translated_text></translated_text> tags.
Do not emit any comments, notes, or text outside the tags.
</OUTPUT_REQUIREMENTS>`

const taskInfoTemplate = `
<your_task>
    <previous_sentence_context>{PREVIOUS_CONTEXT}</previous_sentence_context>
    <source_text>{SOURCE_TEXT}</source_text>
    <following_sentence_context>{FOLLOWING_CONTEXT}</following_sentence_context>
    <target_language>{TARGET_LANGUAGE}</target_language>
    <terminology>{TERMINOLOGY}</terminology>
    <similar_translations>{SIMILAR_TRANSLATIONS}</similar_translations>
    <additional_instructions>{ADDITIONAL_INSTRUCTIONS}</additional_instructions>
</your_task>`

// Delimiters the model is instructed to wrap its translation in.
const (
	TranslatedTextOpenTag  = "<translated_text>"
	TranslatedTextCloseTag = "</translated_text>"
)
