// Package transfer moves files between the local filesystem and a remote
// file-transfer endpoint. Both operations are idempotent with respect to the
// destination path: uploads replace any pre-existing remote file, downloads
// truncate any pre-existing local file.
//
// Error taxonomy:
//   - a missing remote file on download is ErrNotFound, a distinct condition
//     callers can branch on;
//   - failure to connect or authenticate is ErrTransport, fatal for the
//     current operation. No retry or backoff is performed here; callers that
//     need retries wrap these calls themselves.
package transfer

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested remote file does not exist.
var ErrNotFound = errors.New("transfer: remote file not found")

// ErrTransport indicates the endpoint could not be reached or authenticated.
var ErrTransport = errors.New("transfer: transport failure")

// Client is the narrow file-transfer contract the migration pipeline
// consumes. Implementations must be safe for concurrent use.
type Client interface {
	// Upload copies localPath to remotePath, replacing any existing file.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Download copies remotePath to localPath, truncating any existing file.
	// A missing remote file fails with ErrNotFound.
	Download(ctx context.Context, remotePath, localPath string) error

	// Close releases the underlying connection, if any.
	Close() error
}
