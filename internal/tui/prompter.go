// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/northstarmanager/nsm/internal/source"
)

// confirmFunc is the prompt used by RetryPrompter.
//
//nolint:gochecknoglobals // Test seam for prompt answers.
var confirmFunc = Confirm

// RetryPrompter asks whether a rate-limited update pass should wait and run
// again. Without a terminal it always declines.
type RetryPrompter struct {
	Config      Config
	Interactive bool
}

// NewRetryPrompter returns a RetryPrompter for the current process.
func NewRetryPrompter() *RetryPrompter {
	return &RetryPrompter{Config: DefaultConfig(), Interactive: IsInteractive()}
}

// ConfirmRetry implements updater.Prompter.
func (p *RetryPrompter) ConfirmRetry(ctx context.Context, rlErr *source.RateLimitError) (bool, error) {
	if !p.Interactive {
		slog.Warn("not retrying without a terminal", "error", rlErr)
		return false, nil
	}

	desc := "Retrying waits a minute and then checks every package again."
	if !rlErr.ResetAt.IsZero() {
		desc = fmt.Sprintf("The limit resets at %s. %s", rlErr.ResetAt.Local().Format("15:04"), desc)
	}

	ok, err := confirmFunc(ctx, ConfirmOptions{
		Title:       "Release API rate limit exceeded. Retry?",
		Description: desc,
		Affirmative: "Retry",
		Negative:    "Skip updates",
		Default:     false,
		Config:      p.Config,
	})
	if errors.Is(err, ErrCancelled) {
		return false, nil
	}
	return ok, err
}
