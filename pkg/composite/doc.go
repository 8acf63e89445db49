// Package composite provides a reusable library for building and sealing
// composite objects in a shared object store.
//
// A composite object is a typed metadata document whose value is an ordered
// list of references to other, already sealed objects (for example a parallel
// stream made of one component stream per worker). Callers accumulate member
// references on a Builder and then Build it against a Client connection, which
// allocates an identifier, submits the document and seals it.
//
// Sealing is atomic and idempotent. A sealed document is immutable and visible
// to every client; until then it is invisible. The metadata service rejects a
// seal whose members do not all resolve to sealed objects, so a visible
// composite never references an object under construction.
//
// Store implementations (memory, Postgres, SQLite) live under metastore/,
// snapshot storage for persisted objects (memory, filesystem, S3) under
// snapshot/, and an HTTP surface under api/ and httpclient/.
package composite
