// Package broker wraps Google Cloud Pub/Sub for the ingestion pipeline.
//
// Three topics are used: the incoming topic (consumed through a durable
// subscription), the failed topic that receives quarantined messages
// verbatim, and the cleaned fan-out topic that downstream indexers bind their
// own subscriptions to. Topics and the incoming subscription are created when
// missing. Receive delivers one message at a time.
package broker
