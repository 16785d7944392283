// Package translate localizes report insights with Google Cloud Translation.
//
// Insights are generated in English. When INSIGHT_LANGUAGE names another
// language, digests carry the translated text instead. For example, with
// INSIGHT_LANGUAGE=gu:
//   - "Urgent complaints: 2 in the selected range." → "તાકીદની ફરિયાદો: ..."
//
// Graceful degradation: if the API key or language is not set, translation
// is disabled. On API errors the English originals are returned.
package translate

import (
	"context"
	"fmt"
	"sync"

	"cmonreports/internal/logging"

	"cloud.google.com/go/translate"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// backend is the part of *translate.Client the Translator calls.
type backend interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

// Translator wraps the Cloud Translation client.
//
// The translations of the previous call are kept, so insights that did not
// change since the last refresh cycle are not sent again. Older entries are
// dropped.
type Translator struct {
	client backend
	target language.Tag
	log    zerolog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewTranslator creates a Translator for the target language.
//
// Returns nil if apiKey or lang is empty, or lang is English (graceful
// degradation).
func NewTranslator(ctx context.Context, apiKey, lang string) (*Translator, error) {
	log := logging.Component("translate")

	if apiKey == "" || lang == "" {
		log.Info().Msg("⚠️  TRANSLATE_API_KEY or INSIGHT_LANGUAGE not set. Insight translation disabled.")
		return nil, nil
	}

	target, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid INSIGHT_LANGUAGE %q: %w", lang, err)
	}
	base, _ := target.Base()
	english, _ := language.English.Base()
	if base == english {
		log.Info().Msg("Insight language is English, translation disabled")
		return nil, nil
	}

	client, err := translate.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create translate client: %w", err)
	}

	log.Info().Str("language", target.String()).Msg("✓ Cloud Translation configured successfully")
	return newTranslator(client, target, log), nil
}

func newTranslator(client backend, target language.Tag, log zerolog.Logger) *Translator {
	return &Translator{
		client: client,
		target: target,
		log:    log,
		cache:  make(map[string]string),
	}
}

// TranslateInsights translates texts in one API call, skipping cached ones.
//
// The result always has len(texts) entries. On error it holds the originals
// and the error is returned alongside so the caller can log it.
func (t *Translator) TranslateInsights(ctx context.Context, texts []string) ([]string, error) {
	if t == nil || len(texts) == 0 {
		return texts, nil
	}

	result := make([]string, len(texts))
	var missing []string
	var missingIdx []int

	t.mu.Lock()
	for i, text := range texts {
		if cached, ok := t.cache[text]; ok {
			result[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	t.mu.Unlock()

	if len(missing) == 0 {
		t.retain(texts, result)
		return result, nil
	}

	translations, err := t.client.Translate(ctx, missing, t.target, &translate.Options{
		Source: language.English,
		Format: translate.Text,
	})
	if err == nil && len(translations) != len(missing) {
		err = fmt.Errorf("got %d translations for %d inputs", len(translations), len(missing))
	}
	if err != nil {
		t.log.Warn().Err(err).Msg("  ⚠️  Translation failed, keeping English insights")
		return texts, fmt.Errorf("translate insights: %w", err)
	}

	for j, tr := range translations {
		result[missingIdx[j]] = tr.Text
	}
	t.retain(texts, result)

	return result, nil
}

// retain replaces the cache with the translations of this call.
func (t *Translator) retain(texts, translated []string) {
	cache := make(map[string]string, len(texts))
	for i, text := range texts {
		cache[text] = translated[i]
	}
	t.mu.Lock()
	t.cache = cache
	t.mu.Unlock()
}

// Close releases the underlying client.
func (t *Translator) Close() error {
	if t == nil {
		return nil
	}
	return t.client.Close()
}
