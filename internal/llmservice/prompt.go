package llmservice

import (
	"fmt"
	"strings"

	"multilingual-rag/internal/models"
)

// BuildPrompt renders the prompt for one turn. Retrieval mode places the
// context above the pivot-language question; chat mode asks the model to
// answer in languageName directly.
func BuildPrompt(mode models.Mode, context []string, question, languageName string) string {
	if mode == models.ModeChat {
		if languageName == "" {
			languageName = models.PivotLanguageName
		}
		return fmt.Sprintf(models.ChatPromptTemplate, languageName, question)
	}
	return fmt.Sprintf(models.RAGPromptTemplate, strings.Join(context, models.ContextSeparator), question)
}
