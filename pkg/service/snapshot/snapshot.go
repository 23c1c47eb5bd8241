// Package snapshot moves the coordinate cache in and out of JSON Lines files of model.Record,
// one record per line sorted by concept.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
)

// Export writes every cached entry to w and returns how many were written
func Export(ctx context.Context, repo interfaces.CoordinateRepository, w io.Writer) (int, error) {
	entries, err := repo.List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list cached coordinates")
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i, entry := range entries {
		if err := enc.Encode(entry.ToRecord()); err != nil {
			return i, goerr.Wrap(err, "failed to write record", goerr.V(model.ConceptKey, entry.Concept))
		}
	}

	if err := bw.Flush(); err != nil {
		return len(entries), goerr.Wrap(err, "failed to flush snapshot")
	}

	logging.From(ctx).Info("Exported coordinates", "count", len(entries))
	return len(entries), nil
}

// Import reads records from r and stores each one. Blank lines are ignored. The first invalid
// line stops the import; records before it stay imported.
func Import(ctx context.Context, repo interfaces.CoordinateRepository, r io.Reader) (int, error) {
	br := bufio.NewReader(r)

	var count, line int
	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return count, goerr.Wrap(readErr, "failed to read snapshot", goerr.V("line", line+1))
		}
		line++

		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			var record model.Record
			if err := json.Unmarshal(trimmed, &record); err != nil {
				return count, goerr.Wrap(model.ErrInvalidInput, "malformed snapshot record",
					goerr.V("line", line), goerr.V("error", err.Error()))
			}

			entry, err := record.ToEntry()
			if err != nil {
				return count, goerr.Wrap(err, "invalid snapshot record", goerr.V("line", line))
			}
			if err := repo.Put(ctx, entry); err != nil {
				return count, goerr.Wrap(err, "failed to store snapshot record", goerr.V("line", line))
			}
			count++
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if err := ctx.Err(); err != nil {
			return count, goerr.Wrap(err, "snapshot import cancelled", goerr.V("line", line))
		}
	}

	logging.From(ctx).Info("Imported coordinates", "count", count)
	return count, nil
}
