// Package crawler implements the two-stage roster crawl: the listing loop that
// walks paginated JSON envelopes until the declared total is exhausted, and the
// profile stage that turns each fetched agent page into a ProfileRecord.
//
// Fetching, HTML querying and record persistence are collaborators injected
// through the Fetcher, selector.Document and RecordSink abstractions.
package crawler
