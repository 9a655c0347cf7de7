package relevance

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups keywords that share a semantic role.
type Category int

const (
	// Geographic keywords name the target country, regions and landmarks.
	Geographic Category = iota

	// ProgramArea keywords name the kinds of work the funding supports.
	ProgramArea

	// Beneficiary keywords name the target populations.
	Beneficiary

	// FundingType keywords name the funding instrument.
	FundingType

	// Priority keywords signal eligibility or preferred approaches.
	Priority

	// Exclusion keywords signal that the target cannot apply.
	Exclusion
)

// String returns the snake_case category name used in reports.
func (c Category) String() string {
	switch c {
	case Geographic:
		return "geographic"
	case ProgramArea:
		return "program_area"
	case Beneficiary:
		return "beneficiary"
	case FundingType:
		return "funding_type"
	case Priority:
		return "priority"
	case Exclusion:
		return "exclusion"
	default:
		return "unknown"
	}
}

// MarshalText lets categories be used as JSON object keys.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Anchor raises the base weight of matching keywords within a category.
// With Contains set, Term matches any keyword containing it; otherwise the
// keyword must equal Term. Both comparisons are case-insensitive.
type Anchor struct {
	Term     string
	Contains bool
	Weight   float64
}

// matches reports whether the anchor applies to keyword.
func (a Anchor) matches(keyword string) bool {
	k := strings.ToLower(keyword)
	t := strings.ToLower(a.Term)
	if a.Contains {
		return strings.Contains(k, t)
	}
	return k == t
}

// CategoryDef is one category of a Taxonomy.
type CategoryDef struct {
	Category Category
	Weight   float64
	Keywords []string

	// Anchors are checked in order; the first match sets the base weight.
	Anchors []Anchor
}

// Taxonomy is the immutable keyword table used by a Scorer.
// It is safe for concurrent reads; nothing mutates it after construction.
type Taxonomy struct {
	defs []CategoryDef
}

// Taxonomy construction errors.
var (
	// ErrEmptyTaxonomy is returned when no category is defined.
	ErrEmptyTaxonomy = errors.New("taxonomy has no categories")

	// ErrEmptyKeyword is returned when a keyword is blank.
	ErrEmptyKeyword = errors.New("taxonomy keyword is empty")

	// ErrDuplicateCategory is returned when a category is defined twice.
	ErrDuplicateCategory = errors.New("taxonomy category defined twice")
)

// NewTaxonomy builds a taxonomy from category definitions.
// The definitions are copied so later changes by the caller have no effect.
func NewTaxonomy(defs ...CategoryDef) (*Taxonomy, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyTaxonomy
	}

	seen := make(map[Category]bool, len(defs))
	copied := make([]CategoryDef, 0, len(defs))
	for _, d := range defs {
		if seen[d.Category] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCategory, d.Category)
		}
		seen[d.Category] = true

		for _, kw := range d.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("%w: category %s", ErrEmptyKeyword, d.Category)
			}
		}

		copied = append(copied, CategoryDef{
			Category: d.Category,
			Weight:   d.Weight,
			Keywords: append([]string(nil), d.Keywords...),
			Anchors:  append([]Anchor(nil), d.Anchors...),
		})
	}

	return &Taxonomy{defs: copied}, nil
}

// Categories returns the categories in definition order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.defs))
	for i, d := range t.defs {
		out[i] = d.Category
	}
	return out
}

// Weight returns the multiplier of a category, or 0 if undefined.
func (t *Taxonomy) Weight(c Category) float64 {
	for _, d := range t.defs {
		if d.Category == c {
			return d.Weight
		}
	}
	return 0
}

// Keywords returns a copy of the keywords of a category.
func (t *Taxonomy) Keywords(c Category) []string {
	for _, d := range t.defs {
		if d.Category == c {
			return append([]string(nil), d.Keywords...)
		}
	}
	return nil
}

// baseWeight returns the anchor weight for keyword in category c, or 1.0.
func (t *Taxonomy) baseWeight(c Category, keyword string) float64 {
	for _, d := range t.defs {
		if d.Category != c {
			continue
		}
		for _, a := range d.Anchors {
			if a.matches(keyword) {
				return a.Weight
			}
		}
	}
	return 1.0
}

// Statistics counts keywords per category, plus a "total" entry.
func (t *Taxonomy) Statistics() map[string]int {
	stats := make(map[string]int, len(t.defs)+1)
	total := 0
	for _, d := range t.defs {
		stats[d.Category.String()] = len(d.Keywords)
		total += len(d.Keywords)
	}
	stats["total"] = total
	return stats
}

// DefaultTaxonomy returns the built-in taxonomy: Peruvian rural development
// with English and Spanish variants of every keyword.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(defaultCategories()...)
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic(err)
	}
	return t
}

func defaultCategories() []CategoryDef {
	return []CategoryDef{
		{
			Category: Geographic,
			Weight:   3.0,
			Anchors: []Anchor{
				{Term: "peru", Weight: 2.0},
				{Term: "perú", Weight: 2.0},
				{Term: "peruvian", Weight: 2.0},
				{Term: "andean", Contains: true, Weight: 1.5},
				{Term: "andes", Contains: true, Weight: 1.5},
			},
			Keywords: []string{
				"Peru", "Perú", "Peruvian", "peruano", "peruana",
				"Andean region", "Andes", "andino", "andina",
				"Ancash Province", "Ancash", "Áncash",
				"Huascarán National Park", "Huascaran", "Huascarán",
				"Rural Peru", "Peru rural", "rural Peru",
				"Highland communities", "comunidades altoandinas",
				"Mountain regions", "regiones montañosas",
				"Peruvian highlands", "altiplano peruano",
				"Remote villages Peru", "aldeas remotas Peru",
				"Indigenous territories", "territorios indígenas",
				"Latin America", "América Latina", "South America", "Sudamérica",
				"developing countries", "países en desarrollo",
				"international development", "desarrollo internacional",
				"overseas programs", "programas internacionales",
				"foreign assistance", "asistencia exterior",
				"global development", "desarrollo global",
				"international cooperation", "cooperación internacional",
			},
		},
		{
			Category: ProgramArea,
			Weight:   2.5,
			Keywords: []string{
				// education
				"rural education", "educación rural", "community learning",
				"adult literacy", "alfabetización", "digital inclusion",
				"inclusión digital", "educational access", "acceso educativo",
				"technical training", "capacitación técnica",

				// economic development
				"microfinance", "microfinanzas", "small business",
				"pequeñas empresas", "agricultural cooperatives",
				"cooperativas agrícolas", "rural entrepreneurship",
				"emprendimiento rural", "income generation",
				"generación de ingresos", "value chain",

				// health
				"rural health", "salud rural", "mobile medical units",
				"unidades médicas móviles", "maternal health",
				"salud materna", "telemedicine", "telemedicina",
				"community health workers", "promotores de salud",
				"nutrition", "nutrición",

				// agriculture
				"sustainable farming", "agricultura sostenible",
				"crop diversification", "diversificación de cultivos",
				"climate-smart agriculture", "agricultura climáticamente inteligente",
				"seed improvement", "mejoramiento de semillas",
				"agribusiness", "agronegocios", "organic farming",

				// infrastructure
				"rural electrification", "electrificación rural",
				"water access", "acceso al agua", "sanitation",
				"saneamiento", "road construction", "construcción de carreteras",
				"digital connectivity", "conectividad digital",
				"renewable energy", "energías renovables",
			},
		},
		{
			Category: Beneficiary,
			Weight:   2.0,
			Keywords: []string{
				"indigenous communities", "comunidades indígenas",
				"Quechua populations", "poblaciones quechua",
				"rural women", "mujeres rurales",
				"smallholder farmers", "pequeños agricultores",
				"mountain dwellers", "pobladores de montaña",
				"vulnerable groups", "grupos vulnerables",
				"rural populations", "poblaciones rurales",
				"mountain communities", "comunidades de montaña",
				"indigenous peoples", "pueblos indígenas",
			},
		},
		{
			Category: FundingType,
			Weight:   1.5,
			Keywords: []string{
				"community development grants", "subsidios desarrollo comunitario",
				"rural infrastructure funding", "financiamiento infraestructura rural",
				"capacity building programs", "programas fortalecimiento capacidades",
				"education initiatives", "iniciativas educativas",
				"health sector grants", "subsidios sector salud",
				"agricultural development", "desarrollo agrícola",
				"NGO funding", "financiamiento ONG",
				"civil society grants", "subsidios sociedad civil",
				"federal grants", "subsidios federales",
				"USAID funding", "financiamiento USAID",
				"international grants", "subsidios internacionales",
				"development assistance", "asistencia para el desarrollo",
				"foreign aid", "ayuda exterior",
				"cooperative agreements", "acuerdos de cooperación",
				"technical assistance", "asistencia técnica",
				"humanitarian aid", "ayuda humanitaria",
			},
		},
		{
			Category: Priority,
			Weight:   1.8,
			Anchors: []Anchor{
				{Term: "peru eligibility", Contains: true, Weight: 2.0},
				{Term: "rural focus", Contains: true, Weight: 1.5},
			},
			Keywords: []string{
				"Peru eligibility", "elegible Peru", "Perú elegible",
				"rural focus", "enfoque rural", "community-based",
				"basado en comunidad", "grassroots organizations",
				"organizaciones de base", "local NGOs", "ONG locales",
				"indigenous-led initiatives", "iniciativas lideradas indígenas",
				"participatory development", "desarrollo participativo",
				"bottom-up approach", "enfoque de abajo hacia arriba",
				"international eligible", "elegible internacional",
				"developing countries eligible", "países en desarrollo elegibles",
				"non-profit organizations", "organizaciones sin fines de lucro",
				"civil society eligible", "sociedad civil elegible",
				"small grants program", "programa de pequeños subsidios",
				"capacity building focus", "enfoque fortalecimiento capacidades",
				"partnership opportunities", "oportunidades de asociación",
			},
		},
		{
			Category: Exclusion,
			Weight:   -5.0,
			Keywords: []string{
				"urban only", "solo urbano", "developed countries only",
				"solo países desarrollados", "research institutions only",
				"solo instituciones investigación", "government agencies only",
				"solo agencias gubernamentales", "commercial ventures only",
				"solo emprendimientos comerciales", "academic organizations only",
				"solo organizaciones académicas", "for-profit only",
				"solo con fines de lucro", "United States only", "solo Estados Unidos",
				"Europe only", "solo Europa", "US citizens only", "solo ciudadanos estadounidenses",
			},
		},
	}
}
