// Package transport moves persisted glyph streams between processes over
// QUIC. Every request runs on its own bidirectional stream: the client
// writes one message and closes its send side, the server answers and
// closes. A FETCH answer is a STREAM_INFO message followed by the raw
// compressed stream, so blobs are not limited by the 16-bit message length.
//
// The server certificate is self-signed; clients pin it by SHA-256
// fingerprint (see package certs).
package transport
