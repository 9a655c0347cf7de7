// Package relevance scores free text against a weighted keyword taxonomy.
//
// A Taxonomy groups keywords into categories (geographic, program area,
// beneficiary, funding type, priority and exclusion). Each category carries a
// multiplier; exclusion has a negative one. A Scorer precompiles every keyword
// once and then analyzes text:
//
//	scorer := relevance.NewScorer(relevance.WithThreshold(3.0))
//	result := scorer.Analyze(title, description, body)
//
// Matching is case-insensitive and accent-aware: text and keywords are folded
// with Unicode NFC and lower-casing, and matches must sit on word boundaries.
// The words of a multi-word keyword may be separated by whitespace, hyphens,
// underscores or dots.
//
// Design decision: Word boundaries are checked in Go rather than with \b,
// because RE2 treats \b as ASCII-only and "Perú" or "Áncash" would otherwise
// fail to match at their last or first letter.
package relevance
