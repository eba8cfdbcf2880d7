// Package food holds the domain types shared by every stage of the ingestion
// pipeline: the FoodRecord committed to the store, the trigger payloads that
// start an invocation or report a committed change, and the typed errors
// each stage reports.
//
// # Field names
//
// Field names cross three boundaries: CSV headers, store attributes and
// change-feed images. All three use the form produced by [CanonicalField]
// (lower case, whitespace runs collapsed to a single underscore), so
// "Food Name", "food name" and "food_name" name the same field everywhere.
//
// # Errors
//
// Each failure mode has its own type so callers can branch with errors.As:
//
//   - [BlobReadError]: the source object is missing or unreadable (fatal)
//   - [ParseError]: the CSV structure is malformed (fatal, nothing written)
//   - [BatchWriteError]: a store call rejected or partially failed (recovered)
//   - [MalformedEventError]: a trigger payload failed boundary validation
//
// [MapError] turns any of them into a user-facing message with a support code.
package food
