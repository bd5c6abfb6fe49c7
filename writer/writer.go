// Package writer serialises a raw.Document into a complete, non-incremental
// PDF file with a classic cross-reference table.
package writer

import (
	"context"
	"io"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version overrides the header version. Empty keeps the document's.
	Version PDFVersion
	// Compress applies FlateDecode to unfiltered streams.
	Compress bool
	// Deterministic derives the file ID from content instead of randomness.
	Deterministic bool
	// StripMetadata drops the Info dictionary and the catalog's XMP stream.
	StripMetadata bool
}

// Writer emits a document. Only objects reachable from the trailer are
// written, so content replaced during editing never survives in the output.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// New returns the default writer.
func New() Writer { return &impl{} }
