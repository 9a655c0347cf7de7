// Package dedup removes near-duplicate opportunities collected from
// different sources.
//
// Two records are near-duplicates when the word-level Jaccard similarity of
// their normalized titles exceeds a threshold (0.8 by default). Records are
// processed in input order and the first one seen is kept; later duplicates
// are dropped without merging fields.
package dedup
