// Package migration drives the export → transfer → import pipeline between
// the two application stores. An export streams a full-table read through the
// tabular codec to a local file and uploads it; an import downloads a remote
// file, decodes it, and bulk-loads it into the destination store with columns
// mapped by name.
//
// The two halves are individually idempotent (uploads overwrite, a re-run
// re-reads the whole source table) but deliberately not jointly transactional:
// a failure between steps leaves the remote file in place and the destination
// in whatever state its own bulk-load atomicity produced. Recovery is a full
// re-run of the sequence.
//
// Table and column identifiers are interpolated into SQL as-is. Callers own
// validation: the CLI (and any future transport) must allow-list identifiers
// before they reach this package.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/tabular"
	"github.com/autoshophq/go-autoshop-backend/internal/transfer"
)

// ErrColumnMismatch indicates a decoded column that does not exist on the
// destination table. It is a configuration error surfaced to the caller, not
// a condition to silently drop data over.
var ErrColumnMismatch = errors.New("migration: column not present on destination table")

// cancelCheckEvery is the row-batch granularity at which long exports observe
// context cancellation.
const cancelCheckEvery = 500

// Job describes one full migration sequence. It exists only for the duration
// of a Run call; no state is persisted, so a retry re-runs from the beginning.
type Job struct {
	SourceTable      string
	LocalPath        string
	RemotePath       string
	DestinationTable string
}

// Migrator coordinates the pipeline against a source store, a destination
// store, and a file-transfer client. Remote paths are joined beneath
// RemoteDir.
type Migrator struct {
	src       *gorm.DB
	dst       *gorm.DB
	files     transfer.Client
	remoteDir string
	batchSize int
}

// New creates a Migrator. batchSize bounds rows per bulk-insert statement;
// values < 1 fall back to 1000.
func New(src, dst *gorm.DB, files transfer.Client, remoteDir string, batchSize int) *Migrator {
	if batchSize < 1 {
		batchSize = 1000
	}
	if remoteDir == "" {
		remoteDir = "/"
	}
	return &Migrator{src: src, dst: dst, files: files, remoteDir: remoteDir, batchSize: batchSize}
}

// ExportAndTransfer streams a full-table read from the source store through
// the codec to localPath, then uploads the file to the remote directory under
// the file's base name. Rows are encoded one at a time; memory stays bounded
// regardless of table size. Cancellation is observed every few hundred rows.
func (m *Migrator) ExportAndTransfer(ctx context.Context, table, localPath string) error {
	start := time.Now()

	rows, err := m.src.WithContext(ctx).Raw("SELECT * FROM " + quoteIdent(table)).Rows()
	if err != nil {
		return fmt.Errorf("reading source table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading source columns for %s: %w", table, err)
	}

	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating export file %s: %w", localPath, err)
	}

	n, err := streamRows(ctx, rows, cols, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("exporting table %s: %w", table, err)
	}
	rowsExported.WithLabelValues(table).Add(float64(n))

	remotePath := path.Join(m.remoteDir, filepath.Base(localPath))
	if err := m.files.Upload(ctx, localPath, remotePath); err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}

	log.Info().
		Str("table", table).
		Str("local_path", localPath).
		Str("remote_path", remotePath).
		Int64("rows", n).
		Dur("elapsed", time.Since(start)).
		Msg("exported table and uploaded file")
	return nil
}

// streamRows encodes every row of the result set, checking for cancellation
// at row-batch granularity. NULL values encode as empty quoted fields; that
// loss of nullability is inherent to the format.
func streamRows(ctx context.Context, rows *sql.Rows, cols []string, f *os.File) (int64, error) {
	w, err := tabular.NewRowWriter(f, cols)
	if err != nil {
		return 0, err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	fields := make([]string, len(cols))

	var n int64
	for rows.Next() {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scanning row %d: %w", n+1, err)
		}
		for i, v := range vals {
			fields[i] = formatValue(v)
		}
		if err := w.WriteRow(fields); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, w.Flush()
}

// DownloadAndImport downloads remotePath (joined beneath the remote
// directory) to localPath, decodes it, and bulk-loads the rows into
// destTable on the destination store, mapping every decoded column by name.
// A decoded column absent on the destination fails with ErrColumnMismatch
// before any row is written.
func (m *Migrator) DownloadAndImport(ctx context.Context, remotePath, localPath, destTable string) error {
	start := time.Now()

	full := path.Join(m.remoteDir, remotePath)
	if err := m.files.Download(ctx, full, localPath); err != nil {
		return fmt.Errorf("downloading %s: %w", full, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening downloaded file %s: %w", localPath, err)
	}
	ds, err := tabular.Decode(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("decoding %s: %w", localPath, err)
	}

	destCols, err := m.mapColumns(ctx, destTable, ds.Columns)
	if err != nil {
		return err
	}

	if err := m.bulkInsert(ctx, destTable, destCols, ds.Rows); err != nil {
		return err
	}
	rowsImported.WithLabelValues(destTable).Add(float64(len(ds.Rows)))

	log.Info().
		Str("table", destTable).
		Str("remote_path", full).
		Str("local_path", localPath).
		Int("rows", len(ds.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("imported file into destination table")
	return nil
}

// Run executes the full export → transfer → import sequence described by job.
func (m *Migrator) Run(ctx context.Context, job Job) error {
	err := m.ExportAndTransfer(ctx, job.SourceTable, job.LocalPath)
	if err == nil {
		err = m.DownloadAndImport(ctx, job.RemotePath, job.LocalPath, job.DestinationTable)
	}
	if err != nil {
		runs.WithLabelValues("error").Inc()
		return err
	}
	runs.WithLabelValues("ok").Inc()
	return nil
}

// mapColumns verifies every decoded column exists on the destination table
// and returns the destination's own spelling for each. Matching is
// case-insensitive, as bulk loaders conventionally are.
func (m *Migrator) mapColumns(ctx context.Context, table string, cols []string) ([]string, error) {
	probe, err := m.dst.WithContext(ctx).Raw("SELECT * FROM " + quoteIdent(table) + " LIMIT 0").Rows()
	if err != nil {
		return nil, fmt.Errorf("probing destination table %s: %w", table, err)
	}
	defer probe.Close()

	destCols, err := probe.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading destination columns for %s: %w", table, err)
	}

	mapped := make([]string, len(cols))
	for i, c := range cols {
		found := ""
		for _, dc := range destCols {
			if strings.EqualFold(c, dc) {
				found = dc
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("%w: %q on %s", ErrColumnMismatch, c, table)
		}
		mapped[i] = found
	}
	return mapped, nil
}

// bulkInsert loads rows in multi-row INSERT batches, observing cancellation
// between batches. Atomicity is whatever the destination store gives a single
// INSERT statement; a failure mid-sequence leaves earlier batches applied.
func (m *Migrator) bulkInsert(ctx context.Context, table string, cols []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	prefix := "INSERT INTO " + quoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES "
	rowTuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	for off := 0; off < len(rows); off += m.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + m.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[off:end]

		tuples := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, r := range batch {
			tuples[i] = rowTuple
			for _, v := range r {
				args = append(args, v)
			}
		}

		if err := m.dst.WithContext(ctx).Exec(prefix+strings.Join(tuples, ", "), args...).Error; err != nil {
			return fmt.Errorf("bulk-loading %s rows %d-%d: %w", table, off+1, end, err)
		}
	}
	return nil
}

// formatValue renders a scanned database value as its tabular field. NULL
// becomes the empty string.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// quoteIdent wraps an identifier in double quotes, doubling any embedded
// quote. This is quoting, not validation; identifiers are trusted input here.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
