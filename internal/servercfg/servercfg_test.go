// SPDX-License-Identifier: MPL-2.0

package servercfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/northstarmanager/nsm/internal/testutil"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		convars []Convar
		want    string
	}{
		{
			name:    "replaces and appends",
			content: "// server settings\nns_server_name \"old\"\nns_server_password \"\"\n",
			convars: []Convar{{"ns_server_name", "Alpha"}, {"ns_report_server_to_masterserver", "1"}},
			want:    "// server settings\nns_server_name \"Alpha\"\nns_server_password \"\"\nns_report_server_to_masterserver \"1\"\n",
		},
		{
			name:    "keeps trailing comment",
			content: "ns_server_name \"old\" // shown in the browser\n",
			convars: []Convar{{"ns_server_name", "Alpha"}},
			want:    "ns_server_name \"Alpha\" // shown in the browser\n",
		},
		{
			name:    "case insensitive name and duplicate lines",
			content: "NS_SERVER_NAME \"a\"\nns_server_name \"b\"\n",
			convars: []Convar{{"ns_server_name", "c"}},
			want:    "ns_server_name \"c\"\nns_server_name \"c\"\n",
		},
		{
			name:    "slashes inside quotes are not a comment",
			content: "ns_masterserver_hostname \"https://old.example\"\n",
			convars: []Convar{{"ns_masterserver_hostname", "https://northstar.tf"}},
			want:    "ns_masterserver_hostname \"https://northstar.tf\"\n",
		},
		{
			name:    "commented out line is not a match",
			content: "// ns_server_name \"x\"\n",
			convars: []Convar{{"ns_server_name", "y"}},
			want:    "// ns_server_name \"x\"\nns_server_name \"y\"\n",
		},
		{
			name:    "keeps crlf",
			content: "a \"1\"\r\nb \"2\"\r\n",
			convars: []Convar{{"b", "3"}},
			want:    "a \"1\"\r\nb \"3\"\r\n",
		},
		{
			name:    "empty file",
			content: "",
			convars: []Convar{{"ns_server_name", "Alpha"}},
			want:    "ns_server_name \"Alpha\"\n",
		},
		{
			name:    "quotes stripped from value",
			content: "",
			convars: []Convar{{"ns_server_desc", `say "hi"`}},
			want:    "ns_server_desc \"say hi\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, Apply(tt.content, tt.convars)); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, filepath.FromSlash(DefaultPath))

	if err := Rewrite(path, []Convar{{"ns_server_name", "Alpha"}}); err != nil {
		t.Fatalf("Rewrite (create): %v", err)
	}
	if got := testutil.MustReadFile(t, path); got != "ns_server_name \"Alpha\"\n" {
		t.Errorf("created file = %q", got)
	}

	if err := Rewrite(path, []Convar{{"ns_server_name", "Beta"}}); err != nil {
		t.Fatalf("Rewrite (update): %v", err)
	}
	if got := testutil.MustReadFile(t, path); got != "ns_server_name \"Beta\"\n" {
		t.Errorf("updated file = %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestRewrite_NoConvarsIsNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "autoexec_ns_server.cfg")
	if err := Rewrite(path, nil); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if testutil.Exists(t, path) {
		t.Error("Rewrite without convars should not create the file")
	}
}
