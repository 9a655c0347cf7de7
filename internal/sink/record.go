package sink

import (
	"fmt"
	"strings"

	"github.com/nao1215/grantscan/internal/model"
)

// Field mapping limits.
const (
	// MaxDescriptionLength bounds Record.Description.
	MaxDescriptionLength = 2000

	// MaxKeywords bounds Record.Keywords.
	MaxKeywords = 10
)

// Record is the persisted shape of an opportunity. JSON names are the
// column names of the Airtable base.
type Record struct {
	GrantName       string   `json:"Grant Name"`
	Organization    []string `json:"Organization"`
	Description     string   `json:"Description"`
	Amount          string   `json:"Amount,omitempty"`
	Deadline        string   `json:"Deadline,omitempty"`
	Category        []string `json:"Category"`
	Keywords        []string `json:"Keywords"`
	Eligibility     string   `json:"Eligibility,omitempty"`
	ApplicationLink string   `json:"Application Link,omitempty"`
	ContactEmail    string   `json:"Contact Email,omitempty"`
	Status          string   `json:"Status"`
	Priority        string   `json:"Priority"`
	Notes           string   `json:"Notes"`
	Source          string   `json:"Source"`

	// RelevanceScore is kept for local stores; it is not an Airtable column.
	RelevanceScore float64 `json:"-"`
}

// NewRecord maps an opportunity onto the persisted field set.
func NewRecord(o *model.Opportunity) Record {
	organization := strings.TrimSpace(o.Organization)
	if organization == "" {
		organization = "Unknown"
	}
	source := o.Source
	if source == "" {
		source = "Unknown"
	}

	category := make([]string, 0, 1)
	if sector := strings.TrimSpace(o.Sector); sector != "" {
		category = append(category, sector)
	}

	n := min(len(o.KeywordMatches), MaxKeywords)
	keywords := make([]string, n)
	copy(keywords, o.KeywordMatches[:n])

	status := string(o.Status)
	if status == "" {
		status = string(model.StatusActive)
	}
	priority := o.PriorityLevel.String()
	if priority == "UNKNOWN" {
		priority = model.PriorityMedium.String()
	}

	return Record{
		GrantName:       o.Title,
		Organization:    []string{organization},
		Description:     model.TruncateRunes(o.Description, MaxDescriptionLength),
		Amount:          o.FundingAmount,
		Deadline:        o.Deadline,
		Category:        category,
		Keywords:        keywords,
		Eligibility:     o.EligibilityCriteria,
		ApplicationLink: o.ApplicationLink,
		ContactEmail:    o.ContactInfo,
		Status:          status,
		Priority:        priority,
		Notes:           fmt.Sprintf("Source: %s. Relevance Score: %v. Auto-scraped via Orchestrator.", source, o.RelevanceScore),
		Source:          source,
		RelevanceScore:  o.RelevanceScore,
	}
}

// Key returns the upsert key: the application link, or the normalized
// title when the record has no link.
func (r Record) Key() string {
	if link := strings.TrimSpace(r.ApplicationLink); link != "" {
		return link
	}
	return model.NormalizeTitle(r.GrantName)
}
