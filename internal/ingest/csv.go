package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// ReadCSV reads a CSV payload, trying the configured encodings in order
// until one decodes cleanly. Header detection runs on the decoded rows.
func ReadCSV(path string, opts Options) (*model.Table, *model.IngestionMetadata, error) {
	raw, size, err := readBounded(path, opts.MaxFileSizeBytes)
	if err != nil {
		return nil, nil, err
	}

	rows, encodingUsed, err := decodeCSV(raw, opts.encodings())
	if err != nil {
		return nil, nil, err
	}

	table, meta, err := assemble(rows, opts)
	if err != nil {
		return nil, nil, err
	}
	meta.Encoding = encodingUsed
	meta.FileSizeBytes = size
	return table, meta, nil
}

// readBounded loads a file, enforcing the configured size cap.
func readBounded(path string, maxBytes int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: stat %s", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, 0, eris.Errorf("ingest: %s is %d bytes, exceeds limit %d", path, info.Size(), maxBytes)
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ingest: read %s", path)
	}
	return raw, info.Size(), nil
}

// decodeCSV tries each encoding in order and parses the first decodable
// candidate as CSV. UTF-8 input is validated rather than transcoded.
func decodeCSV(raw []byte, encodings []string) ([][]string, string, error) {
	var lastErr error
	for _, name := range encodings {
		decoded, err := decodeBytes(raw, name)
		if err != nil {
			lastErr = err
			continue
		}

		reader := csv.NewReader(bytes.NewReader(decoded))
		reader.FieldsPerRecord = -1 // ragged rows are repaired downstream
		reader.LazyQuotes = true

		rows, err := reader.ReadAll()
		if err != nil {
			lastErr = eris.Wrapf(err, "ingest: parse csv as %s", name)
			continue
		}
		return rows, name, nil
	}
	return nil, "", eris.Wrapf(lastErr, "ingest: no supported encoding decoded the payload (%s)", model.CodeEncodingFailure)
}

func decodeBytes(raw []byte, encoding string) ([]byte, error) {
	if encoding == "utf-8" || encoding == "utf8" {
		raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
		if !utf8.Valid(raw) {
			return nil, eris.New("ingest: payload is not valid utf-8")
		}
		return raw, nil
	}

	// htmlindex knows the WHATWG label "latin1", not the common spelling.
	if encoding == "latin-1" {
		encoding = "latin1"
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: unsupported encoding %q", encoding)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: decode as %s", encoding)
	}
	return decoded, nil
}
