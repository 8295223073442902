// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	RateLimitExceededId
	FileNotInZipId
	MalformedReleaseId
	PermissionDeniedId
	InstallLockedId
	GameDirNotFoundId
	LaunchFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render returns the issue as terminal markdown. stylePath is a glamour
// style name such as "dark", "light" or "notty".
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

const readmeLink HttpLink = "https://github.com/northstarmanager/nsm#readme"

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id:       ConfigLoadFailedId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Failed to load configuration!

nsm could not read ` + "`config.cue`" + ` from the game directory.

## Things you can try:
- Check the file for CUE syntax errors
- Compare it against the defaults:
~~~
$ nsm config show --defaults
~~~

- Move the file away and let nsm write a fresh one:
~~~
$ nsm config init
~~~`,
	}

	rateLimitExceededIssue = &Issue{
		id:       RateLimitExceededId,
		docLinks: []HttpLink{readmeLink},
		extLinks: []HttpLink{"https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api"},
		mdMsg: `
# Release API rate limit exceeded!

GitHub allows 60 unauthenticated requests per hour.

## Things you can try:
- Wait for the limit to reset and run nsm again
- Use a personal access token, it raises the limit to 5000 requests:
~~~
$ export GITHUB_TOKEN=ghp_...
~~~

- Or store it in ` + "`config.cue`" + `:
~~~cue
github: token: "ghp_..."
~~~`,
	}

	fileNotInZipIssue = &Issue{
		id:       FileNotInZipId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Release archive does not contain the expected file!

The downloaded archive has no entry matching the package's ` + "`file`" + ` setting.
Nothing was changed on disk.

## Things you can try:
- Check the ` + "`file`" + ` value of the mod in ` + "`config.cue`" + `
- Look at the release archive and pick a file that every release ships,
  usually ` + "`mod.json`",
	}

	malformedReleaseIssue = &Issue{
		id:       MalformedReleaseId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Possibly malformed release!

The newest release has no zip archive (or executable, for nsm itself) attached.

## Things you can try:
- Report the problem to the mod author
- Set ` + "`ignore_prerelease: true`" + ` if only prereleases are affected`,
	}

	permissionDeniedIssue = &Issue{
		id:       PermissionDeniedId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Permission denied!

nsm could not write to the game directory.

## Common causes:
- The game is installed in a protected location such as ` + "`Program Files`" + `
- The game or a dedicated server is running and holds files open

## Things you can try:
- Close the game and every dedicated server, then retry
- Run nsm from an account that owns the game directory`,
	}

	installLockedIssue = &Issue{
		id:       InstallLockedId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Another nsm is already running!

Only one nsm process may update a game directory at a time.

## Things you can try:
- Wait for the other nsm to finish
- If none is running, the lock was released when it exited; simply retry`,
	}

	gameDirNotFoundIssue = &Issue{
		id:       GameDirNotFoundId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Titanfall 2 not found!

nsm must run from the Titanfall 2 directory, next to ` + "`Titanfall2.exe`" + `.

## Things you can try:
- Move nsm into the game directory
- Or set the game directory explicitly:
~~~cue
manager: game_dir: "/path/to/Titanfall2"
~~~`,
	}

	launchFailedIssue = &Issue{
		id:       LaunchFailedId,
		docLinks: []HttpLink{readmeLink},
		mdMsg: `
# Failed to launch Northstar!

## Things you can try:
- Check that ` + "`NorthstarLauncher.exe`" + ` exists in the game directory
- Check the ` + "`launcher.arguments`" + ` in ` + "`config.cue`" + `
- Skip the launch and start the game yourself:
~~~
$ nsm --no-launch
~~~`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():  configLoadFailedIssue,
		rateLimitExceededIssue.Id(): rateLimitExceededIssue,
		fileNotInZipIssue.Id():      fileNotInZipIssue,
		malformedReleaseIssue.Id():  malformedReleaseIssue,
		permissionDeniedIssue.Id():  permissionDeniedIssue,
		installLockedIssue.Id():     installLockedIssue,
		gameDirNotFoundIssue.Id():   gameDirNotFoundIssue,
		launchFailedIssue.Id():      launchFailedIssue,
	}
)

// Values returns the catalog sorted by id.
func Values() []*Issue {
	values := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		values = append(values, i)
	}
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}
