// Package pg2arrow accumulates rows from a PostgreSQL-shaped row source
// into column buffers and encodes them as a valid Apache Arrow IPC File:
// the signature, Schema message, a sequence of RecordBatch messages, and
// a Footer, all built through a hand-rolled FlatBuffer encoder rather
// than a general-purpose FlatBuffers or Arrow library.
package pg2arrow
