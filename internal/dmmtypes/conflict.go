package dmmtypes

import "time"

// ConflictType classifies what kind of disagreement two memories exhibit.
type ConflictType string

const (
	ConflictContradictory ConflictType = "contradictory"
	ConflictDuplicate     ConflictType = "duplicate"
	ConflictSupersession  ConflictType = "supersession"
	ConflictScopeOverlap  ConflictType = "scope_overlap"
	ConflictStale         ConflictType = "stale"
)

// DetectionMethod identifies which analyzer raised a candidate.
type DetectionMethod string

const (
	MethodTagOverlap         DetectionMethod = "tag_overlap"
	MethodSemanticSimilarity DetectionMethod = "semantic_similarity"
	MethodSupersessionChain  DetectionMethod = "supersession_chain"
	MethodRuleExtraction     DetectionMethod = "rule_extraction"
	MethodManual             DetectionMethod = "manual"
	MethodCoRetrieval        DetectionMethod = "co_retrieval"
)

// ConflictStatus is the resolution lifecycle state of a persisted conflict.
type ConflictStatus string

const (
	ConflictUnresolved ConflictStatus = "unresolved"
	ConflictInProgress ConflictStatus = "in_progress"
	ConflictResolved   ConflictStatus = "resolved"
	ConflictDismissed  ConflictStatus = "dismissed"
)

// ConflictRole is a memory's position within a conflict pair.
type ConflictRole string

const (
	RolePrimary   ConflictRole = "primary"
	RoleSecondary ConflictRole = "secondary"
)

// ConflictMemory is a denormalized snapshot of one side of a conflict pair.
type ConflictMemory struct {
	MemoryID string
	Path     string
	Title    string
	Scope    Scope
	Priority float64
	Summary  string
	Role     ConflictRole
}

// Conflict connects exactly two memories (spec.md §3.4).
type Conflict struct {
	ConflictID      string
	DetectedAt      time.Time
	ScanID          string
	Memories        [2]ConflictMemory
	ConflictType    ConflictType
	DetectionMethod DetectionMethod
	Confidence      float64
	Description     string
	Evidence        map[string]any
	Status          ConflictStatus

	ResolvedAt       *time.Time
	ResolutionAction string
	ResolutionTarget string
	ResolutionReason string
	ResolvedBy       string
}

// PairKey is the unordered pair uniqueness key from spec.md §3.4/§6.5. The
// caller must pass ids already ordered consistently (see NewPairKey below)
// so equal pairs compare equal regardless of discovery order.
type PairKey [2]string

// NewPairKey builds a PairKey with a stable (lexicographically sorted)
// ordering of the two ids, so {a,b} and {b,a} produce the same key.
func NewPairKey(a, b string) PairKey {
	if a <= b {
		return PairKey{a, b}
	}
	return PairKey{b, a}
}

// ScanType enumerates how a conflict scan was triggered (spec.md §4.9.5).
type ScanType string

const (
	ScanStartup     ScanType = "startup"
	ScanPeriodic    ScanType = "periodic"
	ScanIncremental ScanType = "incremental"
	ScanTargeted    ScanType = "targeted"
)

// ScanRecord is the persisted history of one conflict scan.
type ScanRecord struct {
	ScanID        string
	ScanType      ScanType
	StartedAt     time.Time
	CompletedAt   time.Time
	DurationMS    int64
	MemoriesScanned int
	MethodsUsed   []DetectionMethod
	Detected      int
	New           int
	Existing      int
	Errors        []string
}
