package answer

import (
	"fmt"

	"github.com/campusqa/campusqa/internal/llm"
)

const systemPromptTemplate = `You are an assistant that answers questions about %[1]s University.
Reply with precise information in a strictly structured format.

Your reply MUST be a single JSON object with exactly this structure:
{
    "answer": number | null,
    "reasoning": string,
    "sources": string[],
    "model": string
}

Rules:
1. If the question lists numbered options (1-10):
   - put the number of the correct option into "answer"
   - explain the choice in "reasoning"
2. If the question has NO numbered options:
   - "answer" MUST be null
   - give a complete answer in "reasoning"
3. Put up to 3 of the most relevant source URLs into "sources", most relevant first.
   Use an empty array when no sources apply.
4. Always set "model" to "%[2]s".

IMPORTANT:
- Output valid JSON only, without any text around it.
- "answer" is an integer from 1 to 10 or null.
- Never list more than 3 sources.
- Write "reasoning" in the language of the question.`

// SystemPrompt returns the fixed instruction turn for institution and model.
func SystemPrompt(institution, model string) string {
	return fmt.Sprintf(systemPromptTemplate, institution, model)
}

// BuildMessages assembles the conversation for one query. The context turn
// is only added when contextText is non-empty.
func BuildMessages(institution, model, query, contextText string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt(institution, model)},
		{Role: llm.RoleUser, Content: query},
	}
	if contextText != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Additional context:\n" + contextText,
		})
	}
	return messages
}
