// SPDX-License-Identifier: MPL-2.0

package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/northstarmanager/nsm/internal/release"
)

// Fetch downloads asset from src into a new temp file inside dir and returns
// its path. The temp file lives next to its final destination so the caller
// can rename it into place atomically. Progress is drawn on progress; pass
// nil to download silently.
func Fetch(ctx context.Context, src Source, asset release.Asset, dir string, progress io.Writer) (_ string, err error) {
	body, size, err := src.Download(ctx, asset.DownloadURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }() // read-only HTTP response body

	if size <= 0 && asset.Size > 0 {
		size = asset.Size
	}

	tmp, err := os.CreateTemp(dir, ".nsm-download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	var dst io.Writer = tmp
	if progress != nil {
		bar := newProgressBar(size, asset.Name, progress)
		defer func() { _ = bar.Finish() }()
		dst = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(dst, body); err != nil {
		return "", fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	return tmp.Name(), nil
}

// newProgressBar draws a byte counter, or a spinner when size is unknown.
func newProgressBar(size int64, name string, w io.Writer) *progressbar.ProgressBar {
	if size <= 0 {
		size = -1
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("downloading "+name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
