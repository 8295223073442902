// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestId_Constants(t *testing.T) {
	ids := []Id{
		ConfigLoadFailedId,
		RateLimitExceededId,
		FileNotInZipId,
		MalformedReleaseId,
		PermissionDeniedId,
		InstallLockedId,
		GameDirNotFoundId,
		LaunchFailedId,
	}

	seen := make(map[Id]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true
	}

	if ConfigLoadFailedId != 1 {
		t.Errorf("ConfigLoadFailedId = %d, want 1", ConfigLoadFailedId)
	}
}

func TestIssue_MarkdownMsg(t *testing.T) {
	issue := Get(RateLimitExceededId)
	if issue == nil {
		t.Fatal("Get(RateLimitExceededId) returned nil")
	}
	if !strings.Contains(string(issue.MarkdownMsg()), "GITHUB_TOKEN") {
		t.Error("rate limit issue should mention GITHUB_TOKEN")
	}
}

func TestIssue_LinksAreCloned(t *testing.T) {
	issue := Get(RateLimitExceededId)
	if issue == nil {
		t.Fatal("Get(RateLimitExceededId) returned nil")
	}

	links := issue.ExtLinks()
	if len(links) == 0 {
		t.Fatal("rate limit issue should have an external link")
	}
	links[0] = "modified"
	if issue.ExtLinks()[0] == "modified" {
		t.Error("ExtLinks() should return a clone")
	}

	docs := issue.DocLinks()
	docs[0] = "modified"
	if issue.DocLinks()[0] == "modified" {
		t.Error("DocLinks() should return a clone")
	}
}

func TestGet_Unknown(t *testing.T) {
	if got := Get(Id(9999)); got != nil {
		t.Errorf("Get(9999) = %v, want nil", got)
	}
}

func TestValues_SortedAndComplete(t *testing.T) {
	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), len(issues))
	}
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Errorf("Values() not sorted at %d: %d >= %d", i, values[i-1].Id(), values[i].Id())
		}
	}
}

func TestAllIssuesHaveContentAndDocs(t *testing.T) {
	for _, issue := range Values() {
		if strings.TrimSpace(string(issue.MarkdownMsg())) == "" {
			t.Errorf("issue %d has empty markdown", issue.Id())
		}
		if len(issue.DocLinks()) == 0 {
			t.Errorf("issue %d has no doc links", issue.Id())
		}
	}
}

//nolint:paralleltest // Swaps the package-level render seam.
func TestIssue_Render_AppendsLinks(t *testing.T) {
	orig := render
	t.Cleanup(func() { render = orig })

	var got, gotStyle string
	render = func(in, stylePath string) (string, error) {
		got, gotStyle = in, stylePath
		return "rendered", nil
	}

	out, err := Get(RateLimitExceededId).Render("notty")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "rendered" || gotStyle != "notty" {
		t.Errorf("Render = %q with style %q", out, gotStyle)
	}
	if !strings.Contains(got, "## See also") || !strings.Contains(got, string(readmeLink)) {
		t.Errorf("rendered markdown missing links:\n%s", got)
	}
}

//nolint:paralleltest // Swaps the package-level render seam.
func TestIssue_Render_Error(t *testing.T) {
	orig := render
	t.Cleanup(func() { render = orig })

	boom := errors.New("boom")
	render = func(string, string) (string, error) { return "", boom }

	if _, err := Get(ConfigLoadFailedId).Render("dark"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	for _, issue := range Values() {
		out, err := issue.Render("notty")
		if err != nil {
			t.Errorf("issue %d failed to render: %v", issue.Id(), err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("issue %d rendered empty", issue.Id())
		}
	}
}

