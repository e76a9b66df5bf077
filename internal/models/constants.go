package models

const (
	PivotLanguageCode = "en"
	PivotLanguageName = "English"

	ContextSeparator = "\n\n"

	UnreachableAnswer = "[Error] Cannot connect to the generation server. Is it running?"
	ServerErrorAnswer = "[Server Error] %d: %s"
	FailedAnswer      = "[Error] %v"

	// UserLanguageLabel names the reply language when it could not be identified.
	UserLanguageLabel = "the user's language"
)

var (
	// RAGPromptTemplate takes the retrieved context and the pivot-language question.
	RAGPromptTemplate = `You are a helpful assistant that answers questions using the given context.

Context:
%s

User Question:
%s

Answer:`

	// ChatPromptTemplate takes the reply language name and the raw user text.
	ChatPromptTemplate = `You are a helpful assistant that always replies in the same language as the user.
Respond only in %s. Be clear and concise.

User: %s
Assistant:`

	TranslatePromptTemplate = `Translate the following text from %s to %s.
Reply with the translation only, without notes or quotes.

%s`

	DefaultLanguages = map[string]string{
		"hi": "Hindi",
		"te": "Telugu",
		"ta": "Tamil",
		"gu": "Gujarati",
		"kn": "Kannada",
		"mr": "Marathi",
		"pa": "Punjabi",
		"en": "English",
	}
)
