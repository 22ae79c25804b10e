package freetext

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/analysis/tokenmap"
	"github.com/blevesearch/bleve/v2/mapping"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Pipeline selects which analysis path a field uses.
type Pipeline string

const (
	// PipelineNormal applies stopword removal and language-aware stemming.
	PipelineNormal Pipeline = "normal"

	// PipelineNonStemmed applies stopword removal only, using the same
	// stopword set as PipelineNormal.
	PipelineNonStemmed Pipeline = "non_stemmed"

	// PipelineAutocomplete applies neither stopwords nor stemming, so it
	// behaves the same for every language.
	PipelineAutocomplete Pipeline = "autocomplete"
)

// Analyzer names registered on the index mapping.
const (
	AnalyzerNormal       = "eq_normal"
	AnalyzerNonStemmed   = "eq_non_stemmed"
	AnalyzerAutocomplete = "eq_autocomplete"

	stopTokenMapName = "eq_stop_words"
	stopFilterName   = "eq_stop"
)

// FieldPipelineFunc maps a field name to the pipeline that indexes it. It is
// supplied by the enclosing application, not decided by the engine.
type FieldPipelineFunc func(field string) Pipeline

// AnalyzerOptions configures the analyzer registry.
type AnalyzerOptions struct {
	// Language is the analyzer language code. Defaults to "en".
	Language string

	// StopWordsPath optionally overrides the provider's stopword set with a
	// word list file.
	StopWordsPath string

	// FieldPipeline assigns pipelines to fields. Nil means every field uses
	// PipelineNormal.
	FieldPipeline FieldPipelineFunc

	// Fields lists the field names to register explicit mappings for.
	Fields []string
}

// resolvedLanguage is the outcome of a provider lookup: either the provider's
// stemmer plus stop set, or the no-op fallback.
type resolvedLanguage struct {
	fallback      bool
	stemmerFilter string
	stopWords     []string
}

// AnalyzerRegistry builds the per-field analysis pipelines for an engine
// instance. Resolution results are cached per language code and survive a
// directory reset within the same registry.
type AnalyzerRegistry struct {
	opts  AnalyzerOptions
	cache *lru.Cache[string, *resolvedLanguage]
}

// NewAnalyzerRegistry creates a registry for the given options.
func NewAnalyzerRegistry(opts AnalyzerOptions) *AnalyzerRegistry {
	if opts.Language == "" {
		opts.Language = "en"
	}
	cache, _ := lru.New[string, *resolvedLanguage](8)
	return &AnalyzerRegistry{opts: opts, cache: cache}
}

// resolve looks up the language provider, loading the stopword override file
// when configured. A missing or broken provider is never fatal: the normal
// and non-stemmed roles fall back to the autocomplete pipeline.
func (r *AnalyzerRegistry) resolve(language string) *resolvedLanguage {
	if cached, ok := r.cache.Get(language); ok {
		return cached
	}

	var res *resolvedLanguage
	provider, ok := LookupLanguageProvider(language)
	if !ok {
		slog.Warn("analyzer_fallback",
			slog.String("language", language),
			slog.String("reason", "no language provider registered"))
		res = &resolvedLanguage{fallback: true}
	} else {
		res = &resolvedLanguage{
			stemmerFilter: provider.StemmerFilter,
			stopWords:     provider.StopWords,
		}
		if r.opts.StopWordsPath != "" {
			words, err := readStopWordsFile(r.opts.StopWordsPath)
			if err != nil {
				slog.Warn("stop_words_unavailable",
					slog.String("path", r.opts.StopWordsPath),
					slog.String("error", err.Error()))
			} else {
				res.stopWords = words
			}
		}
	}

	r.cache.Add(language, res)
	return res
}

// BuildIndexMapping constructs the Bleve index mapping carrying the three
// pipelines and the per-field assignments.
func (r *AnalyzerRegistry) BuildIndexMapping() (mapping.IndexMapping, error) {
	res := r.resolve(r.opts.Language)

	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer(AnalyzerAutocomplete, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add autocomplete analyzer: %w", err)
	}

	normalName := AnalyzerAutocomplete
	nonStemmedName := AnalyzerAutocomplete

	if !res.fallback {
		tokens := make([]interface{}, len(res.stopWords))
		for i, w := range res.stopWords {
			tokens[i] = w
		}
		if err := im.AddCustomTokenMap(stopTokenMapName, map[string]interface{}{
			"type":   tokenmap.Name,
			"tokens": tokens,
		}); err != nil {
			return nil, fmt.Errorf("add stopword token map: %w", err)
		}
		if err := im.AddCustomTokenFilter(stopFilterName, map[string]interface{}{
			"type":           stop.Name,
			"stop_token_map": stopTokenMapName,
		}); err != nil {
			return nil, fmt.Errorf("add stopword filter: %w", err)
		}
		if err := im.AddCustomAnalyzer(AnalyzerNonStemmed, map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": []string{lowercase.Name, stopFilterName},
		}); err != nil {
			return nil, fmt.Errorf("add non-stemmed analyzer: %w", err)
		}
		if err := im.AddCustomAnalyzer(AnalyzerNormal, map[string]interface{}{
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": []string{lowercase.Name, stopFilterName, res.stemmerFilter},
		}); err != nil {
			return nil, fmt.Errorf("add normal analyzer: %w", err)
		}
		normalName = AnalyzerNormal
		nonStemmedName = AnalyzerNonStemmed
	}

	im.DefaultAnalyzer = normalName

	assign := r.opts.FieldPipeline
	for _, field := range r.opts.Fields {
		pipeline := PipelineNormal
		if assign != nil {
			pipeline = assign(field)
		}
		fm := bleve.NewTextFieldMapping()
		switch pipeline {
		case PipelineAutocomplete:
			fm.Analyzer = AnalyzerAutocomplete
		case PipelineNonStemmed:
			fm.Analyzer = nonStemmedName
		default:
			fm.Analyzer = normalName
		}
		im.DefaultMapping.AddFieldMappingsAt(field, fm)
	}

	return im, nil
}

func readStopWordsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadWordList(f)
}
