package models

// Chunk is a fixed-size slice of the extracted document text. Index is the
// position of the chunk in the ingestion sequence.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

type LanguageTag struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func PivotLanguage() LanguageTag {
	return LanguageTag{Code: PivotLanguageCode, Name: PivotLanguageName}
}

// IsPivot reports whether the tag names the language the model is prompted in.
func (t LanguageTag) IsPivot() bool {
	return t.Code == PivotLanguageCode
}

// FallbackReason records why detection did not return the classifier's answer.
type FallbackReason int

const (
	FallbackNone FallbackReason = iota
	FallbackUndetected
	FallbackUnsupported
)

func (r FallbackReason) String() string {
	switch r {
	case FallbackNone:
		return "none"
	case FallbackUndetected:
		return "undetected"
	case FallbackUnsupported:
		return "unsupported"
	}
	return "unknown"
}

type Detection struct {
	Tag      LanguageTag    `json:"tag"`
	Detected string         `json:"detected,omitempty"`
	Fallback FallbackReason `json:"fallback"`
}

type TranslationStatus int

const (
	TranslationOK TranslationStatus = iota
	TranslationIdentity
	TranslationFailed
	TranslationDisabled
)

func (s TranslationStatus) String() string {
	switch s {
	case TranslationOK:
		return "ok"
	case TranslationIdentity:
		return "identity"
	case TranslationFailed:
		return "failed"
	case TranslationDisabled:
		return "disabled"
	}
	return "unknown"
}

type Translation struct {
	Text   string            `json:"text"`
	Status TranslationStatus `json:"status"`
}

// Outcome classifies how the generation step of a turn ended.
type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeUnreachable
	OutcomeServerError
	// OutcomeFailed covers a server that answered with something unusable.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeServerError:
		return "server_error"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Reply is everything one turn presents back to the caller.
type Reply struct {
	Language  LanguageTag `json:"language"`
	Answer    string      `json:"answer"`
	Sources   []Chunk     `json:"sources,omitempty"`
	Detection Detection   `json:"detection"`
	Inbound   Translation `json:"inbound"`
	Outbound  Translation `json:"outbound"`
	Outcome   Outcome     `json:"outcome"`
	// Streamed is set when fragments were already forwarded to the caller.
	Streamed bool `json:"streamed"`
}

type Mode int

const (
	ModeRetrieval Mode = iota
	ModeChat
)

func (m Mode) String() string {
	if m == ModeChat {
		return "chat"
	}
	return "retrieval"
}
