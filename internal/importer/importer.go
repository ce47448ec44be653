// Package importer turns localized tabular files into queryable Postgres
// storage. One ImportService instance is scoped to one resource; the
// Factory selects an implementation by the resource's mimetype.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/civicdata/datastore/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultBatchSize is the number of rows loaded per COPY batch.
const DefaultBatchSize = 1000

// CSVImporter imports one delimited text resource into Postgres.
type CSVImporter struct {
	pool      *pgxpool.Pool
	jobs      datastore.JobStore
	resource  datastore.Resource
	comma     rune
	batchSize int
}

// Import parses the localized file, (re)creates the resource table with a
// record_number sequence column plus one text column per header, captures
// header labels as column descriptions and bulk-loads the rows with COPY.
// Blocking; progress and outcome are persisted as the importer's job record.
func (imp *CSVImporter) Import(ctx context.Context) error {
	ref := imp.resource.UniqueID()
	logger := slog.With("identifier", imp.resource.Identifier, "version", imp.resource.Version)

	imp.record(ctx, ref, datastore.Result{Status: datastore.StatusInProgress, Message: "import started"})

	if err := imp.run(ctx, ref, logger); err != nil {
		imp.record(ctx, ref, datastore.Result{
			Status:  datastore.StatusError,
			Message: err.Error(),
		})
		return err
	}
	return nil
}

func (imp *CSVImporter) run(ctx context.Context, ref string, logger *slog.Logger) error {
	file, err := os.Open(imp.resource.LocalPath)
	if err != nil {
		return fmt.Errorf("open resource file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat resource file: %w", err)
	}
	counter := &countingReader{r: file}

	reader := csv.NewReader(counter)
	reader.Comma = imp.comma
	reader.FieldsPerRecord = -1 // ragged rows are padded below

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := sanitizeColumns(header)

	table := storage.TableName(ref)
	if err := imp.createTable(ctx, table, cols); err != nil {
		return err
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var total int64
	batch := make([][]any, 0, imp.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := imp.pool.CopyFrom(ctx, pgx.Identifier{table}, names, pgx.CopyFromRows(batch))
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
		total += int64(len(batch))
		batch = batch[:0]

		percent := 100
		if info.Size() > 0 {
			percent = int(counter.n * 100 / info.Size())
		}
		imp.record(ctx, ref, datastore.Result{
			Status:  datastore.StatusInProgress,
			Message: fmt.Sprintf("imported %d rows", total),
			Percent: percent,
		})
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		row := make([]any, len(cols))
		for i := range cols {
			if i < len(record) {
				row[i] = record[i]
			} else {
				row[i] = nil
			}
		}
		batch = append(batch, row)
		if len(batch) >= imp.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	imp.record(ctx, ref, datastore.Result{
		Status:  datastore.StatusDone,
		Message: fmt.Sprintf("imported %d rows", total),
		Percent: 100,
	})
	logger.Info("import complete", "rows", total, "table", table)
	return nil
}

// createTable (re)creates the resource table and its column metadata.
// Re-imports replace the previous contents.
func (imp *CSVImporter) createTable(ctx context.Context, table string, cols []Column) error {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, quoteIdentifier(datastore.RecordNumberColumn)+" SERIAL")
	for _, c := range cols {
		defs = append(defs, quoteIdentifier(c.Name)+" TEXT")
	}

	if _, err := imp.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(table)); err != nil {
		return fmt.Errorf("drop previous table: %w", err)
	}
	sql := "CREATE TABLE " + quoteIdentifier(table) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := imp.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := imp.pool.Exec(ctx, `DELETE FROM datastore_columns WHERE table_name = $1`, table); err != nil {
		return fmt.Errorf("clear column metadata: %w", err)
	}
	insert := `INSERT INTO datastore_columns (table_name, column_name, column_type, description, ordinal)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := imp.pool.Exec(ctx, insert, table, datastore.RecordNumberColumn, "serial", "", 0); err != nil {
		return fmt.Errorf("insert column metadata: %w", err)
	}
	for i, c := range cols {
		description := ""
		if c.Label != c.Name {
			description = c.Label
		}
		if _, err := imp.pool.Exec(ctx, insert, table, c.Name, "text", description, i+1); err != nil {
			return fmt.Errorf("insert column metadata: %w", err)
		}
	}
	return nil
}

// Result returns the importer's last known job result for this resource.
func (imp *CSVImporter) Result(ctx context.Context) datastore.Result {
	rec, ok, err := imp.jobs.Get(ctx, imp.resource.UniqueID(), datastore.LabelImporter)
	if err != nil || !ok {
		return datastore.Result{Status: datastore.StatusWaiting}
	}
	return datastore.Result{Status: rec.Status, Message: rec.Message, Percent: rec.Percent}
}

// Storage returns the handle over this resource's imported rows.
func (imp *CSVImporter) Storage() datastore.Storage {
	return storage.NewPostgres(imp.pool, imp.resource.UniqueID())
}

func (imp *CSVImporter) record(ctx context.Context, ref string, res datastore.Result) {
	err := imp.jobs.Store(ctx, datastore.JobRecord{
		Ref:     ref,
		Label:   datastore.LabelImporter,
		Status:  res.Status,
		Percent: res.Percent,
		Message: res.Message,
	})
	if err != nil {
		slog.Error("failed to persist importer job record", "ref", ref, "error", err)
	}
}

// countingReader tracks bytes consumed for percent-complete reporting.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
