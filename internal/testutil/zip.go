// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ZipEntry is one entry of a zip fixture. Names ending in "/" are
// directories and carry no body.
type ZipEntry struct {
	Name string
	Body string
}

// BuildZip returns the bytes of a zip archive holding entries in order.
func BuildZip(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("failed to add %s to zip: %v", e.Name, err)
		}
		if e.Body == "" {
			continue
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("failed to write %s to zip: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// ZipReader returns a reader over an in-memory archive holding entries.
func ZipReader(t testing.TB, entries ...ZipEntry) *zip.Reader {
	t.Helper()
	data := BuildZip(t, entries...)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open zip fixture: %v", err)
	}
	return zr
}

// WriteZip writes an archive holding entries to path.
func WriteZip(t testing.TB, path string, entries ...ZipEntry) {
	t.Helper()
	if err := os.WriteFile(path, BuildZip(t, entries...), 0o644); err != nil {
		t.Fatalf("failed to write zip %s: %v", path, err)
	}
}
