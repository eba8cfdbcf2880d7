// Package store holds the key-value store backends. Each backend implements
// ingest.BatchWriter; Postgres and Memory can also feed committed items to
// the change observer.
package store
