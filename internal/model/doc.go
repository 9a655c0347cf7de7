// Package model defines the core data structures used throughout grantscan.
//
// This package contains the following main types:
//   - Opportunity: the normalized funding-opportunity record every collector produces
//   - PriorityLevel and Status: enums attached to an Opportunity
//   - SourceStatus: the per-source collection state machine of a session
//   - ScrapingReport: the summary of one orchestration session
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The collector, relevance, pipeline, sink and report packages all
// exchange these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
