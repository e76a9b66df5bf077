package language

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"multilingual-rag/internal/config"
	"multilingual-rag/internal/models"
)

type stubDetector struct {
	code string
	ok   bool
}

func (s stubDetector) Detect(string) (string, bool) { return s.code, s.ok }

type stubTranslator struct {
	out   string
	err   error
	calls int
}

func (s *stubTranslator) Translate(ctx context.Context, text string, from, to models.LanguageTag) (string, error) {
	s.calls++
	return s.out, s.err
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		detector Detector
		input    string
		wantTag  models.LanguageTag
		fallback models.FallbackReason
	}{
		{"supported", stubDetector{"ta", true}, "வணக்கம்", models.LanguageTag{Code: "ta", Name: "Tamil"}, models.FallbackNone},
		{"unsupported", stubDetector{"fr", true}, "Bonjour", models.PivotLanguage(), models.FallbackUnsupported},
		{"undetected", stubDetector{"", false}, "???", models.PivotLanguage(), models.FallbackUndetected},
		{"empty input", stubDetector{"hi", true}, "   ", models.PivotLanguage(), models.FallbackUndetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBridge(tt.detector, nil, models.DefaultLanguages)
			got := b.Detect(tt.input)
			if got.Tag != tt.wantTag {
				t.Errorf("tag: got %+v, want %+v", got.Tag, tt.wantTag)
			}
			if got.Fallback != tt.fallback {
				t.Errorf("fallback: got %s, want %s", got.Fallback, tt.fallback)
			}
		})
	}
}

func TestWhatlangDetector(t *testing.T) {
	b := NewBridge(WhatlangDetector{}, nil, models.DefaultLanguages)
	tests := []struct {
		text string
		code string
	}{
		{"வணக்கம், இந்த கருவியை எப்படி பயன்படுத்துவது?", "ta"},
		{"నమస్కారం, ఈ పరికరాన్ని ఎలా ఉపయోగించాలి?", "te"},
		{"The quick brown fox jumps over the lazy dog while the children are watching from the window.", "en"},
	}
	for _, tt := range tests {
		got := b.Detect(tt.text)
		if got.Tag.Code != tt.code || got.Fallback != models.FallbackNone {
			t.Errorf("%q: got %+v", tt.text, got)
		}
	}
}

func TestTranslate_FailureIsIdentity(t *testing.T) {
	tr := &stubTranslator{err: errors.New("service unavailable")}
	b := NewBridge(stubDetector{}, tr, models.DefaultLanguages)
	hindi, _ := b.Lookup("hi")

	got := b.ToPivot(context.Background(), "नमस्ते", hindi)
	if got.Text != "नमस्ते" || got.Status != models.TranslationFailed {
		t.Errorf("got %+v", got)
	}

	tr.err, tr.out = nil, "   "
	got = b.FromPivot(context.Background(), "Hello", hindi)
	if got.Text != "Hello" || got.Status != models.TranslationFailed {
		t.Errorf("empty translation should fall back, got %+v", got)
	}
}

func TestTranslate_IdentityAndDisabled(t *testing.T) {
	tr := &stubTranslator{out: "unused"}
	b := NewBridge(stubDetector{}, tr, models.DefaultLanguages)

	got := b.ToPivot(context.Background(), "Hello", models.PivotLanguage())
	if got.Text != "Hello" || got.Status != models.TranslationIdentity {
		t.Errorf("got %+v", got)
	}
	if tr.calls != 0 {
		t.Errorf("pivot to pivot must not call the translator")
	}

	off := NewBridge(stubDetector{}, nil, models.DefaultLanguages)
	tamil, _ := off.Lookup("TA")
	got = off.FromPivot(context.Background(), "Hello", tamil)
	if got.Text != "Hello" || got.Status != models.TranslationDisabled {
		t.Errorf("got %+v", got)
	}
}

func TestTranslate_OK(t *testing.T) {
	tr := &stubTranslator{out: "How do I print a receipt?"}
	b := NewBridge(stubDetector{}, tr, models.DefaultLanguages)
	hindi, _ := b.Lookup("hi")
	got := b.ToPivot(context.Background(), "रसीद कैसे प्रिंट करें?", hindi)
	if got.Text != tr.out || got.Status != models.TranslationOK {
		t.Errorf("got %+v", got)
	}
}

func TestBonjourFallsBackWithoutTranslation(t *testing.T) {
	tr := &stubTranslator{out: "should not be used"}
	b := NewBridge(stubDetector{"fr", true}, tr, models.DefaultLanguages)
	det := b.Detect("Bonjour")
	got := b.ToPivot(context.Background(), "Bonjour", det.Tag)
	if got.Text != "Bonjour" || got.Status != models.TranslationIdentity {
		t.Errorf("got %+v", got)
	}
	if tr.calls != 0 {
		t.Errorf("translator called %d times", tr.calls)
	}
}

func TestLibreTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["source"] != "hi" || req["target"] != "en" || req["api_key"] != "secret" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"translatedText": "translated: " + req["q"]})
	}))
	defer srv.Close()

	lt := NewLibreTranslator(config.TranslatorConfig{BaseURL: srv.URL + "/", APIKey: "secret", TimeoutSecs: 5})
	got, err := lt.Translate(context.Background(), "नमस्ते", models.LanguageTag{Code: "hi"}, models.PivotLanguage())
	if err != nil {
		t.Fatal(err)
	}
	if got != "translated: नमस्ते" {
		t.Errorf("got %q", got)
	}

	if _, err := lt.Translate(context.Background(), "x", models.LanguageTag{Code: "ta"}, models.PivotLanguage()); err == nil {
		t.Error("expected error for a rejected request")
	}
}

func TestLibreTranslator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewBridge(stubDetector{}, NewLibreTranslator(config.TranslatorConfig{BaseURL: url, TimeoutSecs: 1}), models.DefaultLanguages)
	hindi, _ := b.Lookup("hi")
	got := b.ToPivot(context.Background(), "नमस्ते", hindi)
	if got.Text != "नमस्ते" || got.Status != models.TranslationFailed {
		t.Errorf("got %+v", got)
	}
}

type echoModel struct {
	prompt string
}

func (m *echoModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, part := range messages[0].Parts {
		if tc, ok := part.(llms.TextContent); ok {
			m.prompt = tc.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Hello  \n"}}}, nil
}

func (m *echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMTranslator(t *testing.T) {
	m := &echoModel{}
	got, err := NewLLMTranslator(m).Translate(context.Background(), "नमस्ते", models.LanguageTag{Code: "hi", Name: "Hindi"}, models.PivotLanguage())
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello" {
		t.Errorf("got %q", got)
	}
	if m.prompt == "" {
		t.Fatal("model was not called")
	}
	for _, want := range []string{"from Hindi to English", "नमस्ते"} {
		if !strings.Contains(m.prompt, want) {
			t.Errorf("prompt %q missing %q", m.prompt, want)
		}
	}
}

func TestNewTranslator(t *testing.T) {
	tr, err := NewTranslator(config.TranslatorConfig{Type: config.TranslatorNone}, config.GenerationConfig{}, "")
	if err != nil || tr != nil {
		t.Errorf("none: got %v %v", tr, err)
	}
	tr, err = NewTranslator(config.TranslatorConfig{Type: config.TranslatorLibre, BaseURL: "http://x"}, config.GenerationConfig{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*LibreTranslator); !ok {
		t.Errorf("expected LibreTranslator, got %T", tr)
	}
	if _, err := NewTranslator(config.TranslatorConfig{Type: "babel"}, config.GenerationConfig{}, ""); err == nil {
		t.Error("expected error for unknown type")
	}
}
