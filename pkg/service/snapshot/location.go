package snapshot

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/interfaces"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/utils/logging"
	"github.com/secmon-lab/anchorpoint/pkg/utils/safe"
)

const gcsScheme = "gs://"

// location is either a local path or a GCS object
type location struct {
	path   string
	bucket string
	object string
}

func (l location) isGCS() bool {
	return l.bucket != ""
}

func parseLocation(s string) (location, error) {
	if s == "" {
		return location{}, goerr.Wrap(model.ErrInvalidInput, "snapshot location is required")
	}
	if !strings.HasPrefix(s, gcsScheme) {
		return location{path: s}, nil
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(s, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return location{}, goerr.Wrap(model.ErrInvalidInput, "GCS location must be gs://bucket/object",
			goerr.V("location", s))
	}
	return location{bucket: bucket, object: object}, nil
}

// gcsReadCloser closes the object reader and then the client that owns it
type gcsReadCloser struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReadCloser) Close() error {
	defer safe.Close(context.Background(), r.client)
	return r.Reader.Close()
}

// gcsWriteCloser commits the object on Close
type gcsWriteCloser struct {
	*storage.Writer
	client *storage.Client
}

func (w *gcsWriteCloser) Close() error {
	defer safe.Close(context.Background(), w.client)
	if err := w.Writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit GCS object",
			goerr.V("bucket", w.Bucket), goerr.V("object", w.Name))
	}
	return nil
}

// Open returns a reader for a local path or a gs://bucket/object location
func Open(ctx context.Context, s string) (io.ReadCloser, error) {
	loc, err := parseLocation(s)
	if err != nil {
		return nil, err
	}

	if !loc.isGCS() {
		f, err := os.Open(loc.path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open snapshot", goerr.V("path", loc.path))
		}
		return f, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCS client")
	}
	reader, err := client.Bucket(loc.bucket).Object(loc.object).NewReader(ctx)
	if err != nil {
		safe.Close(ctx, client)
		return nil, goerr.Wrap(err, "failed to open GCS object",
			goerr.V("bucket", loc.bucket), goerr.V("object", loc.object))
	}
	return &gcsReadCloser{Reader: reader, client: client}, nil
}

// Create returns a writer for a local path or a gs://bucket/object location. The GCS object
// only becomes visible once the writer is closed without error.
func Create(ctx context.Context, s string) (io.WriteCloser, error) {
	loc, err := parseLocation(s)
	if err != nil {
		return nil, err
	}

	if !loc.isGCS() {
		f, err := os.Create(loc.path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create snapshot", goerr.V("path", loc.path))
		}
		return f, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCS client")
	}
	writer := client.Bucket(loc.bucket).Object(loc.object).NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"
	return &gcsWriteCloser{Writer: writer, client: client}, nil
}

// ExportTo writes the cache to a local path or a gs://bucket/object location. On failure
// nothing is left at the destination: a local file is removed and a GCS upload is
// cancelled before it commits.
func ExportTo(ctx context.Context, repo interfaces.CoordinateRepository, dest string) (int, error) {
	loc, err := parseLocation(dest)
	if err != nil {
		return 0, err
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := Create(uploadCtx, dest)
	if err != nil {
		return 0, err
	}

	n, err := Export(ctx, repo, w)
	if err != nil {
		cancel()
		if closeErr := w.Close(); closeErr != nil {
			logging.From(ctx).Debug("Aborted snapshot writer", "error", closeErr.Error())
		}
		if !loc.isGCS() {
			if rmErr := os.Remove(loc.path); rmErr != nil {
				logging.From(ctx).Warn("Failed to remove partial snapshot",
					"path", loc.path, "error", rmErr.Error())
			}
		}
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, goerr.Wrap(err, "failed to finish snapshot", goerr.V("output", dest))
	}
	return n, nil
}
