// Package sink persists ranked opportunities into external stores.
//
// Every store receives the same flat Record produced by NewRecord and is
// addressed through the Sink interface: Upsert keyed by the application
// link (or the normalized title when there is none) and ReadAll for
// reconciliation. Persist drives a Sink over a whole session, counting
// per-record failures without stopping.
//
// Two implementations are provided: AirtableSink talks to the Airtable REST
// API and StoreSink writes into the local database.
package sink
