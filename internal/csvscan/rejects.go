package csvscan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"csvingest/internal/rejects"
	"csvingest/internal/schema"
)

var newlineDisplay = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// fillRejectsLocked writes one scans row per opened file and the rejectable
// errors of every file, honouring the table-wide limit. It returns the
// number of error rows written.
func (c *Coordinator) fillRejectsLocked(ctx context.Context) (uint64, error) {
	tbl, err := c.cctx.Rejects.GetOrCreate(ctx, c.opts.RejectsTable, c.opts.RejectsScansTable)
	if err != nil {
		return 0, err
	}
	tbl.WriteLock.Lock()
	defer tbl.WriteLock.Unlock()

	errApp := tbl.ErrorsAppender(ctx)
	scanApp := tbl.ScansAppender(ctx)
	limit := c.opts.RejectsLimit
	d := c.opts.Dialect
	desc := schema.Describe(c.cols)
	skip := 0
	if d.HasHeader {
		skip = 1
	}

	var written uint64
	appendAll := func() error {
		for _, fs := range c.st.files {
			if fs == nil {
				continue
			}
			scan := rejects.ScanRecord{
				ScanID:    c.cctx.QueryID,
				FileID:    fs.FileIdx,
				FilePath:  fs.Path,
				Delimiter: byteString(d.Delimiter),
				Quote:     byteString(d.Quote),
				Escape:    byteString(d.Escape),
				NewLine:   newlineDisplay.Replace(d.NewLine),
				SkipRows:  skip,
				HasHeader: d.HasHeader,
				Columns:   desc,
			}
			if err := scanApp.AppendRow(scan.Values()...); err != nil {
				return err
			}
			lines := fs.Errors.LineIndex()
			for _, e := range fs.Errors.Errors() {
				if !e.Kind.Rejectable() {
					continue
				}
				if limit != 0 && tbl.Count+written >= limit {
					break
				}
				written++
				rec := rejects.Record{
					ScanID:       c.cctx.QueryID,
					FileID:       fs.FileIdx,
					Line:         lines.GetLine(e.Info),
					BytePosition: e.BytePosition,
					ColumnIndex:  e.ColumnIdx + 1,
					ColumnName:   rejectColumnName(e, fs.Names),
					ErrorType:    e.Kind.RejectName(),
					CSVLine:      e.CSVRow,
					Message:      e.Message,
				}
				if err := errApp.AppendRow(rec.Values()...); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err = appendAll(); err == nil {
		err = errors.Join(errApp.Close(), scanApp.Close())
	}
	if err != nil {
		return 0, fmt.Errorf("csvscan: write rejects to %s: %w", tbl.Name, err)
	}
	// The cap only counts rows that reached the sink.
	tbl.Count += written
	return written, nil
}

// rejectColumnName is the quoted name of the column an error refers to. A
// too-many-columns error has none; a too-few error names the first missing
// column.
func rejectColumnName(e *Error, names []string) *string {
	idx := e.ColumnIdx
	switch e.Kind {
	case KindTooManyColumns:
		return nil
	case KindTooFewColumns:
		idx++
	}
	if idx < 0 || idx >= len(names) {
		panic(fmt.Sprintf("internal: %s error refers to column %d of %d", e.Kind, idx, len(names)))
	}
	name := `"` + names[idx] + `"`
	return &name
}

func byteString(b byte) string {
	if b == 0 {
		return ""
	}
	return string(rune(b))
}
