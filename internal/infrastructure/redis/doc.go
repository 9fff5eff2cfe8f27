// Package redis publishes hub domain events onto a Redis stream.
//
// Each recorded event becomes one XADD entry on the configured stream
// (default "grayhub:events") so that external consumers can follow the
// event log with consumer groups. The stream is trimmed approximately to
// redis.max_len entries.
package redis
