// Package observability provides the diagnostic logger, the JSONL event log
// of staffdesk domain events, and usage metrics derived from that log.
package observability
