// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/source"
)

// ChecksumsAssetName is the release asset holding sha256sum output.
const ChecksumsAssetName = "checksums.txt"

// maxChecksumsBytes bounds the checksums.txt download.
const maxChecksumsBytes = 1 << 20

var (
	// ErrChecksumMismatch indicates the computed SHA256 hash does not match the expected hash.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrAssetNotFound indicates the requested asset filename was not found in checksums.txt.
	ErrAssetNotFound = errors.New("asset not found in checksums")

	errNoValidEntries = errors.New("no valid checksum entries found")
)

type (
	// ChecksumEntry is one "<sha256>  <filename>" line.
	ChecksumEntry struct {
		Hash     string
		Filename string
	}

	// ChecksumError wraps ErrChecksumMismatch with both digests.
	ChecksumError struct {
		Filename string
		Expected string
		Got      string
	}
)

// Error returns a human-readable description of the checksum mismatch.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ParseChecksums reads sha256sum output. Both the text ("hash  name") and
// binary ("hash *name") forms are accepted; other lines are skipped.
func ParseChecksums(r io.Reader) ([]ChecksumEntry, error) {
	var entries []ChecksumEntry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		hash, name, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if !ok || !isValidHexHash(hash) {
			continue
		}
		name = strings.TrimPrefix(strings.TrimSpace(name), "*")
		if name == "" {
			continue
		}
		entries = append(entries, ChecksumEntry{Hash: strings.ToLower(hash), Filename: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	if len(entries) == 0 {
		return nil, errNoValidEntries
	}
	return entries, nil
}

// FindChecksum returns the hash listed for filename.
func FindChecksum(entries []ChecksumEntry, filename string) (string, error) {
	for _, e := range entries {
		if e.Filename == filename {
			return e.Hash, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAssetNotFound, filename)
}

// VerifyFile compares the SHA256 of the file at path with expectedHash.
func VerifyFile(path, expectedHash string) error {
	got, err := ComputeFileHash(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expectedHash) {
		return &ChecksumError{Filename: path, Expected: strings.ToLower(expectedHash), Got: got}
	}
	return nil
}

// ComputeFileHash returns the lowercase hex SHA256 of the file at path.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // read-only file handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyAsset checks the downloaded file at path against the checksums.txt
// asset of c. Releases without checksums.txt, and checksum files that do not
// list asset, are accepted with a log line.
func VerifyAsset(ctx context.Context, src source.Source, c release.Candidate, asset release.Asset, path string) error {
	var sums *release.Asset
	for i := range c.Assets {
		if c.Assets[i].Name == ChecksumsAssetName {
			sums = &c.Assets[i]
			break
		}
	}
	if sums == nil {
		slog.Debug("release has no checksums", "tag", c.Tag)
		return nil
	}

	body, _, err := src.Download(ctx, sums.DownloadURL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", ChecksumsAssetName, err)
	}
	defer func() { _ = body.Close() }() // read-only HTTP response body

	entries, err := ParseChecksums(io.LimitReader(body, maxChecksumsBytes))
	if err != nil {
		return fmt.Errorf("release %s: %w", c.Tag, err)
	}
	expected, err := FindChecksum(entries, asset.Name)
	if errors.Is(err, ErrAssetNotFound) {
		slog.Warn("asset not listed in checksums", "tag", c.Tag, "asset", asset.Name)
		return nil
	}
	if err != nil {
		return err
	}
	if err := VerifyFile(path, expected); err != nil {
		var ce *ChecksumError
		if errors.As(err, &ce) {
			ce.Filename = asset.Name
		}
		return err
	}
	slog.Debug("checksum verified", "asset", asset.Name)
	return nil
}

func isValidHexHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
