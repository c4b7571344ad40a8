// Package domain holds the records that flow through a crawl: extracted
// candidates, persisted opportunities, and run statistics.
package domain

import "time"

// OpportunityType is the closed set of listing categories.
type OpportunityType string

// Opportunity categories.
const (
	TypeResearch   OpportunityType = "research"
	TypeInternship OpportunityType = "internship"
	TypeFunding    OpportunityType = "funding"
	TypeFellowship OpportunityType = "fellowship"
	TypeLeadership OpportunityType = "leadership"
)

// ParseOpportunityType returns the matching type and true, or research and
// false when raw is not one of the known categories.
func ParseOpportunityType(raw string) (OpportunityType, bool) {
	switch OpportunityType(raw) {
	case TypeResearch, TypeInternship, TypeFunding, TypeFellowship, TypeLeadership:
		return OpportunityType(raw), true
	default:
		return TypeResearch, false
	}
}

// Status is the tracking lifecycle state of a persisted opportunity.
type Status string

// Tracking statuses.
const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusMissing Status = "missing"
	StatusRemoved Status = "removed"
)

// Extractor names recorded as provenance.
const (
	ExtractorInference = "inference"
	ExtractorHeuristic = "heuristic"
)

// Candidate is an unreconciled record produced by one extraction pass.
type Candidate struct {
	Title                   string          `json:"title"`
	Description             string          `json:"description"`
	Department              string          `json:"department"`
	OpportunityType         OpportunityType `json:"opportunity_type"`
	EligibilityRequirements string          `json:"eligibility_requirements,omitempty"`
	Deadline                string          `json:"deadline,omitempty"`
	FundingAmount           string          `json:"funding_amount,omitempty"`
	ApplicationURL          string          `json:"application_url,omitempty"`
	SourceURL               string          `json:"source_url"`
	ContactEmail            string          `json:"contact_email,omitempty"`
	Tags                    []string        `json:"tags,omitempty"`

	// Provenance.
	ExtractorUsed     string  `json:"extractor_used"`
	InferenceParsed   bool    `json:"inference_parsed"`
	ParsingConfidence float64 `json:"parsing_confidence,omitempty"`
	InferenceError    string  `json:"inference_error,omitempty"`
}

// Opportunity is the durable, reconciled record.
type Opportunity struct {
	ID                      string          `json:"id"`
	Title                   string          `json:"title"`
	Description             string          `json:"description"`
	Department              string          `json:"department"`
	OpportunityType         OpportunityType `json:"opportunity_type"`
	EligibilityRequirements string          `json:"eligibility_requirements,omitempty"`
	Deadline                string          `json:"deadline,omitempty"`
	FundingAmount           string          `json:"funding_amount,omitempty"`
	ApplicationURL          string          `json:"application_url,omitempty"`
	SourceURL               string          `json:"source_url"`
	ContactEmail            string          `json:"contact_email,omitempty"`
	Tags                    []string        `json:"tags"`

	ContentFingerprint      string    `json:"content_fingerprint"`
	SimilarityGroup         string    `json:"similarity_group"`
	Status                  Status    `json:"status"`
	ConsecutiveMissingCount int       `json:"consecutive_missing_count"`
	IsActive                bool      `json:"is_active"`
	FirstSeenAt             time.Time `json:"first_seen_at"`
	LastSeenAt              time.Time `json:"last_seen_at"`
	LastUpdatedAt           time.Time `json:"last_updated_at"`
	ScrapedAt               time.Time `json:"scraped_at"`

	ExtractorUsed     string     `json:"extractor_used"`
	InferenceParsed   bool       `json:"inference_parsed"`
	ParsingConfidence float64    `json:"parsing_confidence"`
	InferenceError    string     `json:"inference_error,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

// ApplyContent copies the mutable content and provenance fields of c onto o.
// Tracking fields are left untouched.
func (o *Opportunity) ApplyContent(c *Candidate) {
	o.Title = c.Title
	o.Description = c.Description
	o.Department = c.Department
	o.OpportunityType = c.OpportunityType
	o.EligibilityRequirements = c.EligibilityRequirements
	o.Deadline = c.Deadline
	o.FundingAmount = c.FundingAmount
	o.ContactEmail = c.ContactEmail
	o.Tags = append([]string(nil), c.Tags...)
	if c.ApplicationURL != "" {
		o.ApplicationURL = c.ApplicationURL
	}
	o.ExtractorUsed = c.ExtractorUsed
	o.InferenceParsed = c.InferenceParsed
	o.ParsingConfidence = c.ParsingConfidence
	o.InferenceError = c.InferenceError
}
