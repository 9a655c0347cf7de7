// Package collector fetches funding opportunities from external sources.
//
// Each source is a Collector: a name plus a Collect method returning
// normalized model.Opportunity records. Collectors are independent; the
// pipeline package runs them concurrently, retries them and isolates their
// failures. A Registry holds the collectors available to a session in
// registration order.
//
// The adapters in this package cover the source shapes the tool meets:
//   - PortalCollector: government portal pages parsed with goquery
//   - KnownProgramsCollector: a curated list of national programs
//   - GrantsSearchCollector: keyword searches on a grants search portal
//   - ExtractCollector: structured extraction through the Firecrawl API
//   - FeedCollector: RSS and Atom feeds parsed with gofeed
//
// Design decision: Site selectors are best effort. A page whose layout
// changed yields fewer records, not an error; only transport failures and
// unexpected HTTP statuses make Collect fail and trigger a retry.
package collector
