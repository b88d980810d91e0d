package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmmcore/dmm/internal/dmmtypes"
)

var (
	h1Heading = regexp.MustCompile(`(?m)^#\s+.+$`)
	h2Heading = regexp.MustCompile(`(?m)^##\s+.+$`)

	rationalePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)##\s*rationale`),
		regexp.MustCompile(`(?i)##\s*why`),
		regexp.MustCompile(`(?i)##\s*reason`),
		regexp.MustCompile(`(?i)##\s*background`),
		regexp.MustCompile(`(?i)##\s*context`),
		regexp.MustCompile(`(?i)because\s`),
		regexp.MustCompile(`(?i)this\s+(is\s+)?(because|due to|since)`),
		regexp.MustCompile(`(?i)the\s+reason\s+(is|for)`),
	}

	wordPattern = regexp.MustCompile(`[a-z]{3,}`)
	commonWords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true,
		"this": true, "that": true, "from": true, "have": true, "are": true,
	}
	vagueTitles = map[string]bool{
		"note": true, "notes": true, "info": true, "information": true,
		"stuff": true, "things": true, "misc": true,
	}
	vagueTags = map[string]bool{
		"misc": true, "other": true, "general": true, "stuff": true,
		"info": true, "note": true,
	}
)

// QualityChecker runs the structural and stylistic checks from spec.md
// §4.7 step 3, the same checks the original Python QualityChecker runs
// (original_source/src/dmm/reviewer/validators/quality.py), adapted from
// one full-content-string input to an already-parsed dmmtypes.Memory.
type QualityChecker struct {
	MinTokens            int
	MaxTokensRecommended int
	MaxTokensHard        int
	MinTags              int
	MaxTags              int
	MaxTitleLength       int
	MinBodyLength        int
}

// NewQualityChecker returns a checker with spec.md's default thresholds.
func NewQualityChecker(maxTokensHard int) *QualityChecker {
	return &QualityChecker{
		MinTokens:            300,
		MaxTokensRecommended: 800,
		MaxTokensHard:        maxTokensHard,
		MinTags:              2,
		MaxTags:              8,
		MaxTitleLength:       80,
		MinBodyLength:        50,
	}
}

// Check runs every quality rule against mem and returns every issue found;
// an empty slice means the content passed cleanly.
func (q *QualityChecker) Check(mem *dmmtypes.Memory) []QualityIssue {
	var issues []QualityIssue
	issues = append(issues, q.checkTokenCount(mem)...)
	issues = append(issues, q.checkSingleConcept(mem)...)
	issues = append(issues, q.checkTitleQuality(mem)...)
	issues = append(issues, q.checkBodyQuality(mem)...)
	issues = append(issues, q.checkTagQuality(mem)...)
	issues = append(issues, q.checkCoherence(mem)...)
	return issues
}

func (q *QualityChecker) checkTokenCount(mem *dmmtypes.Memory) []QualityIssue {
	n := mem.TokenCount
	switch {
	case n > q.MaxTokensHard:
		return []QualityIssue{{
			Code: "token_count_hard_limit", Severity: SeverityError, Field: "body",
			Message:    fmt.Sprintf("token count %d exceeds hard limit %d", n, q.MaxTokensHard),
			Suggestion: "split this memory into multiple smaller memories",
		}}
	case n > q.MaxTokensRecommended:
		return []QualityIssue{{
			Code: "token_count_high", Severity: SeverityWarning, Field: "body",
			Message:    fmt.Sprintf("token count %d exceeds recommended maximum %d", n, q.MaxTokensRecommended),
			Suggestion: "consider splitting into multiple memories for better retrieval",
		}}
	case n < q.MinTokens:
		return []QualityIssue{{
			Code: "token_count_low", Severity: SeverityWarning, Field: "body",
			Message:    fmt.Sprintf("token count %d below recommended minimum %d", n, q.MinTokens),
			Suggestion: "consider adding more context or rationale",
		}}
	}
	return nil
}

func (q *QualityChecker) checkSingleConcept(mem *dmmtypes.Memory) []QualityIssue {
	var issues []QualityIssue
	if h1s := h1Heading.FindAllString(mem.Body, -1); len(h1s) > 1 {
		issues = append(issues, QualityIssue{
			Code: "multiple_concepts", Severity: SeverityError, Field: "body",
			Message:    fmt.Sprintf("found %d H1 headings - memory should have a single main topic", len(h1s)),
			Suggestion: "split into separate memories, one per main concept",
		})
	}
	if h2s := h2Heading.FindAllString(mem.Body, -1); len(h2s) > 5 {
		issues = append(issues, QualityIssue{
			Code: "too_many_sections", Severity: SeverityWarning, Field: "body",
			Message:    fmt.Sprintf("found %d sections - memory may be too broad", len(h2s)),
			Suggestion: "consider focusing on fewer aspects or splitting into multiple memories",
		})
	}
	return issues
}

func (q *QualityChecker) checkTitleQuality(mem *dmmtypes.Memory) []QualityIssue {
	var issues []QualityIssue
	title := strings.TrimSpace(mem.Title)

	if len(title) > q.MaxTitleLength {
		issues = append(issues, QualityIssue{
			Code: "title_too_long", Severity: SeverityWarning, Field: "title",
			Message:    fmt.Sprintf("title length %d exceeds maximum %d", len(title), q.MaxTitleLength),
			Suggestion: "use a shorter, more concise title",
		})
	}
	if len(title) < 5 {
		issues = append(issues, QualityIssue{
			Code: "title_too_short", Severity: SeverityWarning, Field: "title",
			Message:    "title is too short to be descriptive",
			Suggestion: "use a more descriptive title",
		})
	}
	if vagueTitles[strings.ToLower(title)] {
		issues = append(issues, QualityIssue{
			Code: "vague_title", Severity: SeverityWarning, Field: "title",
			Message:    fmt.Sprintf("title %q is too vague", title),
			Suggestion: "use a specific, descriptive title",
		})
	}
	return issues
}

func (q *QualityChecker) checkBodyQuality(mem *dmmtypes.Memory) []QualityIssue {
	var issues []QualityIssue
	if len(strings.TrimSpace(mem.Body)) < q.MinBodyLength {
		issues = append(issues, QualityIssue{
			Code: "body_too_short", Severity: SeverityWarning, Field: "body",
			Message:    fmt.Sprintf("body content is too short (%d chars)", len(mem.Body)),
			Suggestion: "add more context, rationale, or details",
		})
	}

	hasRationale := false
	for _, p := range rationalePatterns {
		if p.MatchString(mem.Body) {
			hasRationale = true
			break
		}
	}
	if !hasRationale {
		issues = append(issues, QualityIssue{
			Code: "missing_rationale", Severity: SeverityInfo, Field: "body",
			Message:    "no rationale or reasoning found",
			Suggestion: "consider adding a rationale section explaining why",
		})
	}
	return issues
}

func (q *QualityChecker) checkTagQuality(mem *dmmtypes.Memory) []QualityIssue {
	var issues []QualityIssue
	tags := mem.Tags

	if len(tags) < q.MinTags {
		issues = append(issues, QualityIssue{
			Code: "too_few_tags", Severity: SeverityWarning, Field: "tags",
			Message:    fmt.Sprintf("only %d tag(s) - minimum recommended is %d", len(tags), q.MinTags),
			Suggestion: "add more relevant tags for better retrieval",
		})
	}
	if len(tags) > q.MaxTags {
		issues = append(issues, QualityIssue{
			Code: "too_many_tags", Severity: SeverityWarning, Field: "tags",
			Message:    fmt.Sprintf("found %d tags - maximum recommended is %d", len(tags), q.MaxTags),
			Suggestion: "focus on the most relevant tags",
		})
	}

	seen := make(map[string]bool, len(tags))
	dup := false
	for _, t := range tags {
		lower := strings.ToLower(t)
		if vagueTags[lower] {
			issues = append(issues, QualityIssue{
				Code: "vague_tag", Severity: SeverityInfo, Field: "tags",
				Message:    fmt.Sprintf("tag %q is too vague", t),
				Suggestion: "use more specific, descriptive tags",
			})
		}
		if seen[lower] {
			dup = true
		}
		seen[lower] = true
	}
	if dup {
		issues = append(issues, QualityIssue{
			Code: "duplicate_tags", Severity: SeverityWarning, Field: "tags",
			Message:    "duplicate tags found",
			Suggestion: "remove duplicate tags",
		})
	}
	return issues
}

func (q *QualityChecker) checkCoherence(mem *dmmtypes.Memory) []QualityIssue {
	titleWords := wordSet(strings.ToLower(mem.Title))
	var tagWords map[string]bool
	for _, t := range mem.Tags {
		if tagWords == nil {
			tagWords = make(map[string]bool)
		}
		for w := range wordSet(strings.ToLower(t)) {
			tagWords[w] = true
		}
	}
	if len(titleWords) == 0 || len(tagWords) == 0 {
		return nil
	}

	overlap := false
	for w := range titleWords {
		if tagWords[w] {
			overlap = true
			break
		}
	}
	if !overlap && len(titleWords) > 2 && len(tagWords) > 2 {
		return []QualityIssue{{
			Code: "low_coherence", Severity: SeverityInfo, Field: "tags",
			Message:    "title and tags appear unrelated",
			Suggestion: "ensure tags reflect the main topic in the title",
		}}
	}
	return nil
}

func wordSet(s string) map[string]bool {
	words := wordPattern.FindAllString(s, -1)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if !commonWords[w] {
			set[w] = true
		}
	}
	return set
}
