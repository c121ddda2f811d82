package publish

import "regexp"

// remotePattern matches both URL forms GitHub hands out:
//
//	HTTPS: https://github.com/owner/repo[.git]
//	SSH:   git@github.com:owner/repo[.git]
var remotePattern = regexp.MustCompile(`(?:https://github\.com/|git@github\.com:)([^/]+)/([^/.]+)(?:\.git)?`)

// ParseRemote extracts owner and repository name from a GitHub remote URL.
// ok is false for any URL that matches neither form.
func ParseRemote(url string) (owner, repo string, ok bool) {
	m := remotePattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// PagesURL returns the public GitHub Pages URL for a repository
func PagesURL(owner, repo string) string {
	return "https://" + owner + ".github.io/" + repo + "/"
}
