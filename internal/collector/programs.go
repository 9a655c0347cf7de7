package collector

import (
	"context"

	"github.com/nao1215/grantscan/internal/model"
)

// KnownProgram is a curated national program that portal pages do not
// reliably expose as a parsable block.
type KnownProgram struct {
	Title         string
	Description   string
	Sector        string
	Ministry      string
	FundingAmount string
	Link          string
	ProgramType   string
}

// DefaultKnownPrograms lists the long-running Peruvian programs relevant to
// rural and indigenous communities.
var DefaultKnownPrograms = []KnownProgram{
	{
		Title:         "PRONABEC - Beca 18 - Rural and Indigenous Communities",
		Description:   "Comprehensive scholarship program for students from rural and indigenous communities to access higher education",
		Sector:        "Education",
		Ministry:      "PRONABEC",
		FundingAmount: "Full scholarship coverage",
		Link:          "https://www.gob.pe/pronabec",
		ProgramType:   "Scholarship Program",
	},
	{
		Title:       "FONCODES - Haku Wiñay - Rural Productive Development",
		Description: "Productive development program for rural families focusing on food security and income generation",
		Sector:      "Rural Development",
		Ministry:    "FONCODES",
		Link:        "https://www.gob.pe/foncodes",
		ProgramType: "Rural Development Program",
	},
	{
		Title:       "AGRORURAL - Mi Riego - Rural Irrigation Program",
		Description: "Support for rural irrigation infrastructure and water management systems",
		Sector:      "Agriculture/Infrastructure",
		Ministry:    "AGRORURAL",
		Link:        "https://www.gob.pe/agrorural",
		ProgramType: "Infrastructure Program",
	},
	{
		Title:       "MIDIS - Qali Warma - School Nutrition Program",
		Description: "Nutrition program providing meals to students in rural and indigenous schools",
		Sector:      "Social Development/Nutrition",
		Ministry:    "MIDIS",
		Link:        "https://www.gob.pe/midis",
		ProgramType: "Social Program",
	},
	{
		Title:       "MINAM - Indigenous Protected Areas Program",
		Description: "Support for indigenous communities managing protected areas and conservation initiatives",
		Sector:      "Environment/Indigenous Rights",
		Ministry:    "MINAM",
		Link:        "https://www.gob.pe/minam",
		ProgramType: "Conservation Program",
	},
}

// KnownProgramsCollector returns a fixed list of programs. It never fails.
type KnownProgramsCollector struct {
	common
	name     string
	programs []KnownProgram
}

// NewKnownProgramsCollector creates the adapter. Nil programs selects
// DefaultKnownPrograms.
func NewKnownProgramsCollector(name string, programs []KnownProgram, opts ...Option) *KnownProgramsCollector {
	if programs == nil {
		programs = DefaultKnownPrograms
	}
	return &KnownProgramsCollector{
		common:   newCommon(opts),
		name:     name,
		programs: append([]KnownProgram(nil), programs...),
	}
}

// Name implements Collector.
func (c *KnownProgramsCollector) Name() string { return c.name }

// Collect implements Collector. Every call returns fresh records.
func (c *KnownProgramsCollector) Collect(ctx context.Context) ([]*model.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Opportunity, 0, len(c.programs))
	for _, p := range c.programs {
		opp := &model.Opportunity{
			Title:            p.Title,
			Organization:     organizationFor(p.Ministry),
			Description:      p.Description,
			FundingAmount:    p.FundingAmount,
			AnnouncementDate: c.stamp(),
			GeographicFocus:  portalGeography,
			Sector:           p.Sector,
			Status:           model.StatusActive,
			ApplicationLink:  p.Link,
			SourceURL:        p.Link,
			Source:           c.name,
			ProgramType:      p.ProgramType,
		}
		opp.Normalize()
		out = append(out, opp)
	}
	return out, nil
}
