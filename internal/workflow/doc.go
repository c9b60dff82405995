// Package workflow runs the QC batch engine.
//
// The Manager loops Querying → Evaluating → Sleeping until stopped. Each
// cycle fetches up to qc.batch_size images without a verdict, checks them
// with bounded parallelism (qc.concurrency) and then sleeps qc.poll_interval,
// including after empty batches. A failing image is logged and counted and
// never stops the cycle; a failing query waits qc.error_retry_interval.
//
// When [redis] url is set, a cycle only runs on the host holding the cycle
// lock. With qc.series_rollup enabled, series whose images are all checked
// get their QC summary recomputed at the end of the cycle.
package workflow
