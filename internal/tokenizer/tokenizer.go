// Package tokenizer provides the deterministic token counting that sizes
// memories, pack budgets, and proposals (spec.md §4.1, §4.5). It wraps
// tiktoken-go's cl100k_base encoding behind a package-level singleton so
// every caller shares one compiled BPE table instead of reloading it per
// call, the same cached-codec idiom the teacher uses for its markdown
// renderer singletons.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is recorded verbatim in system_meta.tokenizer_version so a
// future encoding change can be detected and trigger a full reindex
// (spec.md §9).
const encodingName = "cl100k_base"

// Version is the string persisted as system_meta.tokenizer_version.
const Version = encodingName + "-1"

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
	initErr error
)

func encoding() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		enc, initErr = tiktoken.GetEncoding(encodingName)
	})
	return enc, initErr
}

// Count returns the number of cl100k_base tokens in text. It panics only if
// the encoding table itself failed to load, which indicates a broken build
// rather than bad input; callers that want an error return should use
// TryCount.
func Count(text string) int {
	n, err := TryCount(text)
	if err != nil {
		panic(err)
	}
	return n
}

// TryCount is the error-returning form of Count, used at startup and by any
// caller that wants to surface a load failure instead of panicking.
func TryCount(text string) (int, error) {
	e, err := encoding()
	if err != nil {
		return 0, err
	}
	return len(e.Encode(text, nil, nil)), nil
}

// CountFrontmatterOverhead estimates the token cost of serialized YAML
// frontmatter fences plus a blank separator line, used by the Parser when
// computing Memory.TokenCount for the body alone versus the full file
// (spec.md §3.1 records body-only token_count).
func CountFrontmatterOverhead() int {
	return Count("---\n---\n\n")
}
