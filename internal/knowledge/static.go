// Package knowledge holds org-specific schema notes that help the extractor
// map everyday words onto Salesforce objects and fields.
package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	xerrors "OpenMCP-Salesforce/internal/errors"
)

const defaultMaxResults = 3

// Provider returns the notes relevant to a prompt.
type Provider interface {
	Lookup(prompt string) []Snippet
}

// Snippet is one note. A snippet without keywords matches every prompt.
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// StaticProvider matches keywords against an in-memory list.
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider keeps at most maxResults matches per lookup.
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &StaticProvider{items: items, maxResults: maxResults}
}

// LoadStaticProvider reads a JSON array of snippets.
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "knowledge file path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "resolve knowledge file path")
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "read knowledge file")
	}

	var entries []Snippet
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "decode knowledge file",
			xerrors.WithMetadata("path", absPath))
	}
	return NewStaticProvider(entries, maxResults), nil
}

// Lookup returns matches in file order.
func (p *StaticProvider) Lookup(prompt string) []Snippet {
	if p == nil {
		return nil
	}
	prompt = strings.ToLower(prompt)

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if !matches(item, prompt) {
			continue
		}
		results = append(results, item)
		if len(results) >= p.maxResults {
			break
		}
	}
	return results
}

func matches(snippet Snippet, prompt string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		k := strings.ToLower(strings.TrimSpace(keyword))
		if k != "" && strings.Contains(prompt, k) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
