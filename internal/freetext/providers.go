package freetext

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
	"github.com/blevesearch/snowballstem/german"
	"github.com/blevesearch/snowballstem/italian"
	"github.com/blevesearch/snowballstem/portuguese"
	"github.com/blevesearch/snowballstem/spanish"
)

//go:embed stopwords/*.txt
var stopWordFiles embed.FS

// LanguageProvider supplies language-specific stemming and stopword behavior.
// Providers are populated from a static table at startup; an unknown language
// code falls back to the autocomplete pipeline instead of failing.
type LanguageProvider struct {
	// Code is the language code ("en", "de", ...).
	Code string

	// StemmerFilter is the name of the registered stemming token filter.
	StemmerFilter string

	// StopWords is the default stopword set for the language.
	StopWords []string
}

var languageProviders = map[string]*LanguageProvider{}

func init() {
	for _, lang := range []struct {
		code string
		stem func(*snowballstem.Env) bool
	}{
		{"en", english.Stem},
		{"de", german.Stem},
		{"es", spanish.Stem},
		{"it", italian.Stem},
		{"pt", portuguese.Stem},
	} {
		filterName := "stemmer_eq_" + lang.code
		stem := lang.stem
		registry.RegisterTokenFilter(filterName,
			func(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
				return &snowballStemmerFilter{stem: stem}, nil
			})

		words, err := loadEmbeddedStopWords(lang.code)
		if err != nil {
			// Embedded assets are compiled in; a miss means a broken build.
			panic(fmt.Sprintf("freetext: stopwords for %s: %v", lang.code, err))
		}
		languageProviders[lang.code] = &LanguageProvider{
			Code:          lang.code,
			StemmerFilter: filterName,
			StopWords:     words,
		}
	}
}

// LookupLanguageProvider resolves a provider by language code.
func LookupLanguageProvider(code string) (*LanguageProvider, bool) {
	p, ok := languageProviders[strings.ToLower(code)]
	return p, ok
}

// snowballStemmerFilter adapts a snowball stemming function to a Bleve token
// filter.
type snowballStemmerFilter struct {
	stem func(*snowballstem.Env) bool
}

func (f *snowballStemmerFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		env := snowballstem.NewEnv(string(token.Term))
		f.stem(env)
		token.Term = []byte(env.Current())
	}
	return input
}

func loadEmbeddedStopWords(code string) ([]string, error) {
	f, err := stopWordFiles.Open("stopwords/" + code + ".txt")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadWordList(f)
}

// ReadWordList parses a stopword list: one word per line, blank lines and
// '#' comments ignored.
func ReadWordList(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return words, nil
}
