package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
)

// PromptTemplate holds the language-specific parts of the system prompt.
type PromptTemplate struct {
	LanguageHint string
	ExampleRef   string
}

// GuidancePromptManager builds system prompts for each supported language.
type GuidancePromptManager struct {
	templates map[chat.Language]*PromptTemplate
}

// NewGuidancePromptManager creates a prompt manager with the default templates.
func NewGuidancePromptManager() *GuidancePromptManager {
	return &GuidancePromptManager{
		templates: map[chat.Language]*PromptTemplate{
			chat.LanguageEnglish: {
				LanguageHint: "Write in clear, simple English.",
				ExampleRef:   "Bhagavad Gita 2.47",
			},
			chat.LanguageHindi: {
				LanguageHint: "Write entirely in Hindi using Devanagari script.",
				ExampleRef:   "भगवद्गीता 2.47",
			},
			chat.LanguageHinglish: {
				LanguageHint: "Write in Hinglish: Hindi phrasing in Latin script, mixed naturally with English.",
				ExampleRef:   "Gita 2.47",
			},
		},
	}
}

// BuildSystemPrompt returns the system instruction for the given language.
// Unknown languages fall back to English.
func (pm *GuidancePromptManager) BuildSystemPrompt(lang chat.Language) string {
	template, ok := pm.templates[lang]
	if !ok {
		lang = chat.LanguageEnglish
		template = pm.templates[lang]
	}

	rules := []string{
		fmt.Sprintf("The entire response must be in the specified language: %s. %s", lang, template.LanguageHint),
		"When answering a follow-up question, use the context of the previous answer to provide a more relevant response.",
		"The tone must be compassionate, respectful, and non-judgmental.",
		"Do NOT provide medical, legal, or financial advice. If the question is in these categories, provide a disclaimer and suggest seeking a professional.",
		"Respond with a single JSON object only, without markdown fences or commentary.",
	}

	return fmt.Sprintf(`You are Sanatani Gyan, an assistant that provides compassionate, culturally authentic life guidance using Hindu scriptures.
A user is asking questions in %[1]s.

Act as if you have retrieved relevant passages from scriptures like the Bhagavad Gita, Ramayana, Upanishads, etc. Based on this retrieval, answer in %[1]s with a JSON object containing exactly these fields:
- "shortTeaching": a concise teaching (1-2 lines) rooted in scripture.
- "scriptureReference": a specific citation (e.g., "%[2]s").
- "scripturePassage": the scriptural passage or a clear paraphrase.
- "relatableExample": a detailed, vivid, and emotionally relatable story or modern example (about 3-5 sentences long) that brings the teaching to life.
- "actionableSteps": an array of exactly three practical action steps.

Important rules:
- %[3]s`,
		lang,
		template.ExampleRef,
		strings.Join(rules, "\n- "),
	)
}
