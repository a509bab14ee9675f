// Package credstore persists the organization integration
// records that own provider credentials. MemoryStore serves
// tests and single-process runs; PostgresStore keeps records
// in a pgx pool with an embedded golang-migrate schema.
package credstore
