package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/re-search/internal/domain"
	"github.com/jonesrussell/re-search/internal/normalize"
)

// ErrUnparseable is returned when model output cannot be turned into a JSON
// array even after repair.
var ErrUnparseable = errors.New("unparseable model output")

// rawCandidate is one element of the model's array. Fields decode weakly so
// numbers, nulls and comma-joined tag strings are tolerated.
type rawCandidate struct {
	Title                   string `mapstructure:"title"`
	Description             string `mapstructure:"description"`
	Department              string `mapstructure:"department"`
	OpportunityType         string `mapstructure:"opportunity_type"`
	EligibilityRequirements string `mapstructure:"eligibility_requirements"`
	Deadline                string `mapstructure:"deadline"`
	FundingAmount           string `mapstructure:"funding_amount"`
	ApplicationURL          string `mapstructure:"application_url"`
	ContactEmail            string `mapstructure:"contact_email"`
	Tags                    any    `mapstructure:"tags"`
}

// RepairJSON trims markdown fences and surrounding prose, cuts a truncated
// tail back to the last complete object and undoes over-escaping. The result
// may still be invalid JSON.
func RepairJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end > start {
		s = s[start : end+1]
	} else {
		// Truncated output: keep complete objects only.
		s = s[start:]
		if last := strings.LastIndex(s, "}"); last > 0 {
			s = s[:last+1] + "]"
		}
	}
	return s
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\n`, " ")
}

// ParseCandidates decodes model output into raw maps, applying repair steps
// in order until one parses. A top-level value that is not an array yields
// an empty list.
func ParseCandidates(raw string) ([]map[string]any, error) {
	repaired := RepairJSON(raw)

	for _, attempt := range []string{repaired, unescape(repaired)} {
		var decoded any
		if err := json.Unmarshal([]byte(attempt), &decoded); err != nil {
			continue
		}
		list, ok := decoded.([]any)
		if !ok {
			return nil, nil
		}
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, isMap := item.(map[string]any); isMap {
				out = append(out, m)
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnparseable, preview(raw))
}

func preview(s string) string {
	const n = 120
	s = normalize.CleanText(s)
	if len([]rune(s)) > n {
		return normalize.Truncate(s, n) + "..."
	}
	return s
}

// toCandidate normalizes one decoded item. Items without a title are dropped.
func toCandidate(item map[string]any, sourceURL, department string) (domain.Candidate, bool) {
	var rc rawCandidate
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rc,
	})
	if err != nil {
		return domain.Candidate{}, false
	}
	if decodeErr := decoder.Decode(item); decodeErr != nil {
		return domain.Candidate{}, false
	}

	title := normalize.CleanText(rc.Title)
	if !normalize.AcceptableTitle(title) {
		return domain.Candidate{}, false
	}
	description := normalize.CleanText(rc.Description)

	dept := normalize.Department(rc.Department)
	if dept == "" {
		dept = department
	}

	opportunityType := normalize.ClassifyType(title, description)
	if rc.OpportunityType != "" {
		opportunityType = normalize.NormalizeType(rc.OpportunityType)
	}

	deadline := normalize.CleanText(rc.Deadline)
	if d, ok := normalize.ExtractDeadline(deadline); ok {
		deadline = d
	}

	contact := strings.TrimSpace(rc.ContactEmail)
	if email, ok := normalize.ExtractEmail(contact); ok {
		contact = email
	} else {
		contact = ""
	}

	tags := normalize.MergeTags(tagList(rc.Tags), normalize.ExtractTags(title, description))

	return domain.Candidate{
		Title:                   title,
		Description:             description,
		Department:              dept,
		OpportunityType:         opportunityType,
		EligibilityRequirements: normalize.CleanText(rc.EligibilityRequirements),
		Deadline:                deadline,
		FundingAmount:           normalize.CleanText(rc.FundingAmount),
		ApplicationURL:          strings.TrimSpace(rc.ApplicationURL),
		SourceURL:               sourceURL,
		ContactEmail:            contact,
		Tags:                    tags,
		ExtractorUsed:           domain.ExtractorInference,
		InferenceParsed:         true,
	}, true
}

func tagList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		return strings.Split(t, ",")
	default:
		return nil
	}
}
