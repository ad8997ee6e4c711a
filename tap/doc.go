// Package tap replicates Freshdesk collections into a line delimited JSON
// message stream.
//
// Each selected stream is paged through with per_page/page, records older
// than the stream bookmark (or the configured start date) are skipped, and
// the largest replication value seen becomes the new bookmark. Output lines
// are RECORD and STATE messages:
//
//	{"type":"RECORD","stream":"tickets","record":{...},"time_extracted":"2024-01-02T03:04:05Z"}
//	{"type":"STATE","value":{"bookmarks":{"tickets":{"updated_at":"2024-01-02T03:00:00Z"}}}}
//
// Streams run concurrently, each on its own freshdesk.Client, and bookmarks
// are persisted through a StateStore (a JSON file or a Redis key).
package tap
