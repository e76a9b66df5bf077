package language

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog/log"

	"multilingual-rag/internal/models"
)

// Detector guesses the ISO 639-1 code of a text. ok is false when it cannot tell.
type Detector interface {
	Detect(text string) (code string, ok bool)
}

// Translator converts text between two languages. Implementations may fail;
// Bridge turns failures into an untranslated result.
type Translator interface {
	Translate(ctx context.Context, text string, from, to models.LanguageTag) (string, error)
}

type WhatlangDetector struct{}

func (WhatlangDetector) Detect(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	log.Debug().Str("code", code).Float64("confidence", info.Confidence).Bool("reliable", info.IsReliable()).Msg("Language detection")
	return code, code != ""
}

// Bridge detects the user's language and moves text to and from the pivot
// language. None of its methods fail.
type Bridge struct {
	detector   Detector
	translator Translator
	supported  map[string]string
}

// NewBridge returns a bridge over the supported code -> name set. A nil
// translator disables translation.
func NewBridge(detector Detector, translator Translator, supported map[string]string) *Bridge {
	if detector == nil {
		detector = WhatlangDetector{}
	}
	set := make(map[string]string, len(supported)+1)
	for code, name := range supported {
		set[strings.ToLower(code)] = name
	}
	if _, ok := set[models.PivotLanguageCode]; !ok {
		set[models.PivotLanguageCode] = models.PivotLanguageName
	}
	return &Bridge{detector: detector, translator: translator, supported: set}
}

// Lookup returns the tag of a supported code.
func (b *Bridge) Lookup(code string) (models.LanguageTag, bool) {
	code = strings.ToLower(code)
	name, ok := b.supported[code]
	if !ok {
		return models.LanguageTag{}, false
	}
	return models.LanguageTag{Code: code, Name: name}, true
}

// Detect classifies text. Anything undetected or unsupported falls back to
// the pivot language with the reason recorded.
func (b *Bridge) Detect(text string) models.Detection {
	if strings.TrimSpace(text) == "" {
		return models.Detection{Tag: models.PivotLanguage(), Fallback: models.FallbackUndetected}
	}
	code, ok := b.detector.Detect(text)
	if !ok {
		return models.Detection{Tag: models.PivotLanguage(), Fallback: models.FallbackUndetected}
	}
	tag, ok := b.Lookup(code)
	if !ok {
		log.Warn().Str("code", code).Msg("Unsupported language, defaulting to English")
		return models.Detection{Tag: models.PivotLanguage(), Detected: code, Fallback: models.FallbackUnsupported}
	}
	return models.Detection{Tag: tag, Detected: code, Fallback: models.FallbackNone}
}

// Translate returns text in the target language, or the original text when
// no translation is needed or possible.
func (b *Bridge) Translate(ctx context.Context, text string, from, to models.LanguageTag) models.Translation {
	if strings.TrimSpace(text) == "" || from.Code == to.Code {
		return models.Translation{Text: text, Status: models.TranslationIdentity}
	}
	if b.translator == nil {
		return models.Translation{Text: text, Status: models.TranslationDisabled}
	}
	out, err := b.translator.Translate(ctx, text, from, to)
	if err != nil {
		log.Warn().Err(err).Str("from", from.Code).Str("to", to.Code).Msg("Translation failed, using original text")
		return models.Translation{Text: text, Status: models.TranslationFailed}
	}
	if strings.TrimSpace(out) == "" {
		log.Warn().Str("from", from.Code).Str("to", to.Code).Msg("Empty translation, using original text")
		return models.Translation{Text: text, Status: models.TranslationFailed}
	}
	return models.Translation{Text: out, Status: models.TranslationOK}
}

func (b *Bridge) ToPivot(ctx context.Context, text string, from models.LanguageTag) models.Translation {
	return b.Translate(ctx, text, from, models.PivotLanguage())
}

func (b *Bridge) FromPivot(ctx context.Context, text string, to models.LanguageTag) models.Translation {
	return b.Translate(ctx, text, models.PivotLanguage(), to)
}
