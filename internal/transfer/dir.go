package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir implements Client over a local base directory. It keeps the same
// semantics as the SFTP client (overwrite on upload, ErrNotFound on a missing
// download source) and serves two purposes: deterministic tests for code that
// consumes a Client, and local development runs where no SFTP endpoint is
// configured.
type Dir struct {
	Base string
}

// NewDir returns a Client rooted at base.
func NewDir(base string) *Dir { return &Dir{Base: base} }

// resolve maps a remote-style path (slash-separated, possibly absolute) to a
// path under the base directory.
func (d *Dir) resolve(remotePath string) string {
	rel := strings.TrimPrefix(remotePath, "/")
	return filepath.Join(d.Base, filepath.FromSlash(rel))
}

// Upload copies localPath beneath the base directory, replacing any existing
// file and creating intermediate directories as needed.
func (d *Dir) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := d.resolve(remotePath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating remote directory for %s: %w", remotePath, err)
	}
	return copyFile(localPath, dst)
}

// Download copies a file out of the base directory. A missing source fails
// with ErrNotFound.
func (d *Dir) Download(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := d.resolve(remotePath)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, remotePath)
		}
		return fmt.Errorf("stat %s: %w", remotePath, err)
	}
	return copyFile(src, localPath)
}

// Close is a no-op; Dir holds no connection.
func (d *Dir) Close() error { return nil }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Sync()
}
