// Package artifacts stores and retrieves uploaded voice recordings. Two
// backends are available: a local filesystem directory and a MinIO bucket.
// Recordings are addressed by opaque keys so the rest of the system does not
// care where the bytes live.
package artifacts
