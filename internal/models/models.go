package models

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// File is one ingestible unit handed out by a list strategy.
//
// Content is read once; the orchestrator closes it when the unit is done.
// ACLs maps an access-control kind ("oids", "groups") to identities.
// URL is assigned after the original has been uploaded to object storage.
// OnIngested, when set, is run by MarkIngested once the unit succeeded.
type File struct {
	Content    io.ReadCloser
	Name       string
	ACLs       map[string][]string
	URL        string
	OnIngested func() error

	closeOnce sync.Once
	closeErr  error
}

// NewFile wraps content under the given logical name.
func NewFile(name string, content io.ReadCloser) *File {
	return &File{Name: name, Content: content}
}

// Filename returns the base name of the file.
func (f *File) Filename() string {
	return filepath.Base(f.Name)
}

// Extension returns the file extension including the dot, case preserved.
func (f *File) Extension() string {
	return filepath.Ext(f.Name)
}

var (
	nonIDChars = regexp.MustCompile(`[^0-9a-zA-Z_-]`)

	// fileIDSpace namespaces the name-derived UUIDs used in index document ids.
	fileIDSpace = uuid.MustParse("6f1c9d8e-2b7a-4c43-9b0e-5a0d3f1e7c21")
)

// FilenameToID returns a key-safe identifier for the file name. It depends
// only on the name, so re-ingesting a file maps onto the same ids.
func (f *File) FilenameToID() string {
	name := f.Filename()
	sanitized := nonIDChars.ReplaceAllString(name, "_")
	return fmt.Sprintf("file-%s-%s", sanitized, uuid.NewSHA1(fileIDSpace, []byte(name)))
}

// ErrNotRewindable is returned by Rewind when the content cannot seek.
var ErrNotRewindable = errors.New("file content is not rewindable")

// Rewind moves the content back to its start so it can be read again.
func (f *File) Rewind() error {
	s, ok := f.Content.(io.Seeker)
	if !ok {
		return fmt.Errorf("%s: %w", f.Name, ErrNotRewindable)
	}
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// MarkIngested runs the OnIngested hook, if any.
func (f *File) MarkIngested() error {
	if f.OnIngested == nil {
		return nil
	}
	return f.OnIngested()
}

// Close releases the content stream. Safe to call more than once.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		if f.Content != nil {
			f.closeErr = f.Content.Close()
		}
	})
	return f.closeErr
}

// PageImage is an image embedded in a parsed page.
type PageImage struct {
	Name     string
	MimeType string
	Data     []byte
}

// Page is produced by a parser from a single File. Index is zero-based,
// Offset is the rune offset of the page inside the whole document.
type Page struct {
	Index  int
	Offset int
	Text   string
	Images []PageImage
}

// SplitPage is a chunk of page text, still bound to its page number.
type SplitPage struct {
	PageNum int
	Text    string
}

// Section is an indexable chunk bound to its source File.
type Section struct {
	Split    SplitPage
	File     *File
	Category string
}

// IndexDocument is the record written into the search index.
type IndexDocument struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"embedding,omitempty"`
	ImageEmbedding []float32 `json:"imageEmbedding,omitempty"`
	Category       string    `json:"category,omitempty"`
	SourcePage     string    `json:"sourcepage"`
	SourceFile     string    `json:"sourcefile"`
	StorageURL     string    `json:"storageUrl,omitempty"`
	SourceURL      string    `json:"sourceUrl,omitempty"`
	OIDs           []string  `json:"oids,omitempty"`
	Groups         []string  `json:"groups,omitempty"`
}

// DocumentAction selects the workflow of a single run.
type DocumentAction int

const (
	Add DocumentAction = iota
	Remove
	RemoveAll
)

func (a DocumentAction) String() string {
	switch a {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case RemoveAll:
		return "removeall"
	default:
		return fmt.Sprintf("DocumentAction(%d)", int(a))
	}
}

// ParseDocumentAction maps a CLI name onto a DocumentAction.
func ParseDocumentAction(s string) (DocumentAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "":
		return Add, nil
	case "remove":
		return Remove, nil
	case "removeall", "remove-all":
		return RemoveAll, nil
	}
	return Add, fmt.Errorf("unknown document action %q", s)
}

// Reasons a unit is skipped.
const (
	SkipNoProcessor = "no processor"
	SkipNoContent   = "no content"
)

// Outcome is the result of processing one unit (file, URL or path).
type Outcome struct {
	Name     string `json:"name"`
	Success  bool   `json:"success"`
	Sections int    `json:"sections"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the structured result of one orchestrator run.
type RunResult struct {
	Action   string    `json:"action"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed returns the outcomes that did not succeed.
func (r RunResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}
