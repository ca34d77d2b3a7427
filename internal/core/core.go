// Package core defines the domain entities shared across the discovery
// pipeline: patches, monitored Wikipedia pages, citations, discovered
// content, and the agent-feed queue.
package core

import "time"

// VerificationStatus tracks whether a citation's URL has been confirmed reachable.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// ScanStatus tracks a citation's progress through the processor loop.
type ScanStatus string

const (
	ScanNotScanned    ScanStatus = "not_scanned"
	ScanScanning      ScanStatus = "scanning"
	ScanScanned       ScanStatus = "scanned"
	ScanScannedDenied ScanStatus = "scanned_denied"
)

// RelevanceDecision is the terminal outcome of scoring a citation.
type RelevanceDecision string

const (
	DecisionSaved  RelevanceDecision = "saved"
	DecisionDenied RelevanceDecision = "denied"
)

// CitationSection identifies which part of a Wikipedia page a citation came from.
type CitationSection string

const (
	SectionReferences     CitationSection = "references"
	SectionFurtherReading CitationSection = "further_reading"
	SectionExternalLinks  CitationSection = "external_links"
	SectionUnknown        CitationSection = "unknown"
)

// ExtractionMethod records which tier of the content extractor produced text.
type ExtractionMethod string

const (
	ExtractionReadability      ExtractionMethod = "readability"
	ExtractionContentExtractor ExtractionMethod = "content_extractor"
	ExtractionFallback         ExtractionMethod = "fallback"
	ExtractionInsufficient     ExtractionMethod = "insufficient"
)

// URLClassification is the outcome of canonicalizing and classifying a URL's host.
type URLClassification string

const (
	ClassWikipediaInternal URLClassification = "wikipedia_internal"
	ClassWikimedia         URLClassification = "wikimedia"
	ClassBlocked           URLClassification = "blocked"
	ClassExternal          URLClassification = "external"
)

// FeedQueueStatus tracks an agent-feed queue item's lifecycle.
type FeedQueueStatus string

const (
	FeedQueuePending    FeedQueueStatus = "PENDING"
	FeedQueueProcessing FeedQueueStatus = "PROCESSING"
	FeedQueueDone       FeedQueueStatus = "DONE"
	FeedQueueFailed     FeedQueueStatus = "FAILED"
)

// DiscoveryRunStatus tracks a discovery run's lifecycle (§4.10).
type DiscoveryRunStatus string

const (
	RunRunning   DiscoveryRunStatus = "running"
	RunCompleted DiscoveryRunStatus = "completed"
	RunFailed    DiscoveryRunStatus = "failed"
	RunCancelled DiscoveryRunStatus = "cancelled"
)

// Patch is a user-defined topic scope. Owned by an external collaborator;
// the core treats it as immutable and read-only.
type Patch struct {
	ID      string   `json:"id"`      // Opaque identifier
	Handle  string   `json:"handle"`  // Unique, user-visible slug
	Title   string   `json:"title"`   // Display title
	Aliases []string `json:"aliases"` // Alternate names for the topic
	Tags    []string `json:"tags"`    // Free-form classification tags
}

// MonitoredWikipediaPage is a Wikipedia article flagged for ongoing
// citation extraction under a patch. Created by the bootstrap collaborator;
// mutated only by the citation extractor and store (C4/C5).
type MonitoredWikipediaPage struct {
	ID                 string     `json:"id"`
	PatchID            string     `json:"patch_id"`
	WikipediaTitle     string     `json:"wikipedia_title"`
	WikipediaURL       string     `json:"wikipedia_url"`
	CitationsExtracted bool       `json:"citations_extracted"`
	LastExtractedAt    *time.Time `json:"last_extracted_at,omitempty"`
	CitationCount      int        `json:"citation_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Citation is an external reference extracted from a monitored Wikipedia
// page. It carries both the extracted bibliographic data and the state
// machine that drives it through verification, fetch, extraction, and
// scoring (§4.4).
type Citation struct {
	ID           string `json:"id"`
	MonitoringID string `json:"monitoring_id"` // ref MonitoredWikipediaPage

	CitationURL          string          `json:"citation_url"`
	CitationCanonicalURL string          `json:"citation_canonical_url"`
	CitationTitle        *string         `json:"citation_title,omitempty"`
	CitationContext      *string         `json:"citation_context,omitempty"` // surrounding text, ≤240 chars
	Section              CitationSection `json:"section"`
	SourceNumber         *int            `json:"source_number,omitempty"` // ordinal within the page

	VerificationStatus VerificationStatus `json:"verification_status"`
	ScanStatus         ScanStatus         `json:"scan_status"`
	RelevanceDecision  *RelevanceDecision `json:"relevance_decision,omitempty"`
	AIPriorityScore    *int               `json:"ai_priority_score,omitempty"` // 0-100
	ContentText        *string            `json:"content_text,omitempty"`
	ExtractionMethod   *ExtractionMethod  `json:"extraction_method,omitempty"`
	LastScannedAt      *time.Time         `json:"last_scanned_at,omitempty"`
	ErrorCode          *string            `json:"error_code,omitempty"`
	ErrorMessage       *string            `json:"error_message,omitempty"`
	SavedContentID     *string            `json:"saved_content_id,omitempty"` // ref DiscoveredContent
	Attempts           int                `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the citation's decision can no longer change
// (invariant 1, §8).
func (c *Citation) IsTerminal() bool {
	return c.RelevanceDecision != nil
}

// DiscoveredContent is a canonicalized, dedup-checked content record
// produced from an approved citation (C8).
type DiscoveredContent struct {
	ID           string `json:"id"`
	PatchID      string `json:"patch_id"`
	SourceURL    string `json:"source_url"`
	CanonicalURL string `json:"canonical_url"`
	Domain       string `json:"domain"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`      // ≤500 chars
	TextContent  string `json:"text_content"` // full extracted text, may be large
	Category     string `json:"category"`     // e.g. "article", "book", "wikipedia_citation"
	ContentHash  string `json:"content_hash"` // stable hash over title+summary+text

	RelevanceScore *float64               `json:"relevance_score,omitempty"` // [0,1]
	QualityScore   *float64               `json:"quality_score,omitempty"`   // [0,1]
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hero is a per-content image record owned by an external enrichment
// service; only its interface matters to the core.
type Hero struct {
	ContentID string  `json:"content_id"`
	Status    string  `json:"status"` // DRAFT, READY, ERROR
	ImageURL  *string `json:"image_url,omitempty"`
}

// FeedQueueItem is a work item feeding approved content into the
// per-patch agent memory (C9).
type FeedQueueItem struct {
	ID                  string          `json:"id"`
	PatchID             string          `json:"patch_id"`
	DiscoveredContentID string          `json:"discovered_content_id"`
	ContentHash         string          `json:"content_hash"`
	Status              FeedQueueStatus `json:"status"`
	Priority            int             `json:"priority"`
	EnqueuedAt          time.Time       `json:"enqueued_at"`
	PickedAt            *time.Time      `json:"picked_at,omitempty"`
	Attempts            int             `json:"attempts"`
	LastError           *string         `json:"last_error,omitempty"`
}

// AgentMemory is a durable record ingested by a per-patch agent, the
// output of the feed worker (C9).
type AgentMemory struct {
	ID                  string    `json:"id"`
	AgentID             string    `json:"agent_id"`
	PatchID             string    `json:"patch_id"`
	DiscoveredContentID *string   `json:"discovered_content_id,omitempty"`
	ContentHash         string    `json:"content_hash"`
	SourceType          string    `json:"source_type"` // discovery, manual, citation, ...
	SourceURL           *string   `json:"source_url,omitempty"`
	SourceTitle         *string   `json:"source_title,omitempty"`
	Content             string    `json:"content"` // packed payload
	Tags                []string  `json:"tags"`
	CreatedAt           time.Time `json:"created_at"`
}

// DiscoveryRun tracks one bounded execution of the pipeline for a single
// patch (C11). Not named in the source storage schema; added so the
// coordinator has somewhere to persist run state and enforce the
// one-active-run-per-patch rule.
type DiscoveryRun struct {
	ID             string             `json:"id"`
	PatchID        string             `json:"patch_id"`
	Status         DiscoveryRunStatus `json:"status"`
	ProcessedCount int                `json:"processed_count"`
	SavedCount     int                `json:"saved_count"`
	DeniedCount    int                `json:"denied_count"`
	FailedCount    int                `json:"failed_count"`
	StartedAt      time.Time          `json:"started_at"`
	DeadlineAt     time.Time          `json:"deadline_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
}

// Rate returns processed items per second since the run started. Used for
// the live metrics reported by C11.
func (r *DiscoveryRun) Rate() float64 {
	elapsed := time.Since(r.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.ProcessedCount) / elapsed
}
