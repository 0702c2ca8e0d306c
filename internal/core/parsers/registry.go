// Package parsers holds the document parsers, the splitters and the
// extension keyed registry that pairs them.
package parsers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/markdave123-py/prepdocs/internal/core"
)

// FileProcessor pairs the parser and splitter used for one file type.
type FileProcessor struct {
	Parser   core.Parser
	Splitter core.Splitter
}

// Registry maps lower-cased extensions (".pdf") to processors. It is
// immutable once built.
type Registry struct {
	processors map[string]FileProcessor
}

var ErrInvalidProcessor = errors.New("invalid file processor")

// NewRegistry validates the processor table and returns a registry over a copy of it.
func NewRegistry(processors map[string]FileProcessor) (*Registry, error) {
	out := make(map[string]FileProcessor, len(processors))
	for ext, p := range processors {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return nil, fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidProcessor, ext)
		}
		if ext != strings.ToLower(ext) {
			return nil, fmt.Errorf("%w: extension %q must be lower case", ErrInvalidProcessor, ext)
		}
		if p.Parser == nil || p.Splitter == nil {
			return nil, fmt.Errorf("%w: extension %q needs both a parser and a splitter", ErrInvalidProcessor, ext)
		}
		out[ext] = p
	}
	return &Registry{processors: out}, nil
}

// Lookup returns the processor for ext, matched case-insensitively.
// A missing processor is a skip, not an error.
func (r *Registry) Lookup(ext string) (FileProcessor, bool) {
	if r == nil {
		return FileProcessor{}, false
	}
	p, ok := r.processors[strings.ToLower(ext)]
	return p, ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.processors))
	for ext := range r.processors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Options tunes the default processor table.
type Options struct {
	TargetTokens    int
	OverlapTokens   int
	JSONObjectRunes int
	// Describer, when set, registers image parsers backed by it.
	Describer core.ImageDescriber
}

// DefaultProcessors builds the processor table used by the CLI.
func DefaultProcessors(opts Options) map[string]FileProcessor {
	sentences := NewSentenceSplitter(opts.TargetTokens, opts.OverlapTokens)
	simple := NewSimpleSplitter(opts.JSONObjectRunes)

	processors := map[string]FileProcessor{
		".pdf":  {Parser: NewPDFParser(), Splitter: sentences},
		".txt":  {Parser: TextParser{}, Splitter: sentences},
		".md":   {Parser: NewMarkdownParser(), Splitter: sentences},
		".json": {Parser: JSONParser{}, Splitter: simple},
	}
	for ext, p := range newDocconvParsers(false) {
		processors[ext] = FileProcessor{Parser: p, Splitter: sentences}
	}
	if opts.Describer != nil {
		for ext, mime := range imageMimeTypes {
			processors[ext] = FileProcessor{Parser: NewImageParser(opts.Describer, mime), Splitter: sentences}
		}
	}
	return processors
}
