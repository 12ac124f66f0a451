// Package cache defines the disk-backed store holding verified bundle bytes
// under StoragePath/<stream>/<bundle>/<hash>.bundle. Every write goes through
// a temp file that is hashed while it is filled and renamed into place only
// when the digest matches the catalog hash, so a reader never observes a
// partial or mismatched bundle. The patch engine lists cached versions per
// bundle to compute its diff; the remote source reads hits transparently.
package cache
