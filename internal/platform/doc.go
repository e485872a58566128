// Package platform provides filesystem helpers shared by the storage and index
// layers: crash-safe file replacement, temp file sweeping, and permission
// management. On Windows Chmod is a no-op.
package platform
