package freetext

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzeTerms(t *testing.T, im mapping.IndexMapping, analyzerName, text string) []string {
	t.Helper()
	impl, ok := im.(*mapping.IndexMappingImpl)
	require.True(t, ok)

	analyzer := impl.AnalyzerNamed(analyzerName)
	require.NotNil(t, analyzer, "analyzer %s not registered", analyzerName)

	stream := analyzer.Analyze([]byte(text))
	terms := make([]string, len(stream))
	for i, token := range stream {
		terms[i] = string(token.Term)
	}
	return terms
}

func TestAnalyzerRegistry_NormalStemsAndDropsStopWords(t *testing.T) {
	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "en"})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	terms := analyzeTerms(t, im, AnalyzerNormal, "the running dogs")
	assert.Equal(t, []string{"run", "dog"}, terms)
}

func TestAnalyzerRegistry_NonStemmedDropsStopWordsOnly(t *testing.T) {
	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "en"})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	terms := analyzeTerms(t, im, AnalyzerNonStemmed, "the running dogs")
	assert.Equal(t, []string{"running", "dogs"}, terms)
}

func TestAnalyzerRegistry_AutocompleteKeepsEverything(t *testing.T) {
	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "en"})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	terms := analyzeTerms(t, im, AnalyzerAutocomplete, "The Running Dogs")
	assert.Equal(t, []string{"the", "running", "dogs"}, terms)
}

func TestAnalyzerRegistry_UnknownLanguageFallsBack(t *testing.T) {
	// "fr" has no registered provider: normal and non-stemmed roles fall back
	// to the autocomplete pipeline and building never fails.
	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "fr"})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	impl, ok := im.(*mapping.IndexMappingImpl)
	require.True(t, ok)
	assert.Equal(t, AnalyzerAutocomplete, impl.DefaultAnalyzer)
}

func TestAnalyzerRegistry_GermanProviderStems(t *testing.T) {
	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "de"})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	// "und" is a German stop word; "häuser" stems towards "haus".
	terms := analyzeTerms(t, im, AnalyzerNormal, "häuser und gärten")
	assert.NotContains(t, terms, "und")
	assert.NotContains(t, terms, "häuser")
}

func TestAnalyzerRegistry_StopWordsFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("# test list\nalpha\n\nbeta\n"), 0o644))

	r := NewAnalyzerRegistry(AnalyzerOptions{Language: "en", StopWordsPath: path})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	terms := analyzeTerms(t, im, AnalyzerNonStemmed, "alpha beta gamma the")
	// The file replaces the default set entirely, so "the" survives.
	assert.Equal(t, []string{"gamma", "the"}, terms)
}

func TestAnalyzerRegistry_MissingStopWordsFileKeepsProviderSet(t *testing.T) {
	r := NewAnalyzerRegistry(AnalyzerOptions{
		Language:      "en",
		StopWordsPath: filepath.Join(t.TempDir(), "missing.txt"),
	})
	im, err := r.BuildIndexMapping()
	require.NoError(t, err)

	terms := analyzeTerms(t, im, AnalyzerNonStemmed, "the dogs")
	assert.Equal(t, []string{"dogs"}, terms)
}

func TestLookupLanguageProvider(t *testing.T) {
	p, ok := LookupLanguageProvider("en")
	require.True(t, ok)
	assert.Equal(t, "en", p.Code)
	assert.NotEmpty(t, p.StopWords)

	_, ok = LookupLanguageProvider("fr")
	assert.False(t, ok)

	// Lookup is case-insensitive.
	_, ok = LookupLanguageProvider("DE")
	assert.True(t, ok)
}

func TestReadWordList(t *testing.T) {
	words, err := ReadWordList(strings.NewReader("# comment\nThe\n\n  and \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "and"}, words)
}
