// Package ingest runs one ingestion invocation: read an uploaded object,
// normalize its CSV rows and write them to the key-value store in batches.
//
// # Flow
//
//  1. [Service.Ingest] acquires an invocation slot and assigns an id
//  2. [Pipeline.Handle] validates the event, reads the object and normalizes it
//  3. [Coordinator.Write] drains the records through the store in batches
//
// Read and parse failures abort the invocation before anything is written.
// Batch failures never abort later batches.
//
// # Retry state machine
//
// Every record moves through
//
//	pending -> in-flight -> committed
//	                     -> failed-retryable -> pending
//	                     -> failed-permanent
//
// Records the store reports as unprocessed, and the records of a call it
// rejects with a retryable error, go back to the tail of the pending queue
// after a backoff. A record that has used all of its attempts, that was in a
// call rejected with a permanent error, or that has no key at all, is
// failed-permanent and handed to the [DeadLetter].
package ingest
