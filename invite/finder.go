package invite

import (
	"regexp"
	"strings"
)

// InviteRegex matches Discord invite links with or without a scheme.
var InviteRegex = regexp.MustCompile(`(?:https?://)?(?:discord\.(?:gg|io|me|li)|(?:discord|discordapp)\.com/invite)/([A-Za-z0-9-]+)`)

// Link is a single invite link found in a message.
type Link struct {
	URL  string // the full matched link text
	Code string
}

// Finder holds the invite links of one message.
type Finder struct {
	Links       []Link
	Description string
}

// Find extracts every invite link from content. Description is the content
// with all links removed and surrounding whitespace trimmed.
func Find(content string) *Finder {
	f := &Finder{}
	for _, m := range InviteRegex.FindAllStringSubmatch(content, -1) {
		f.Links = append(f.Links, Link{URL: m[0], Code: m[1]})
	}
	f.Description = strings.TrimSpace(InviteRegex.ReplaceAllString(content, ""))
	return f
}

// Codes returns the distinct invite codes in order of appearance.
func (f *Finder) Codes() []string {
	var codes []string
	seen := make(map[string]bool, len(f.Links))
	for _, l := range f.Links {
		if !seen[l.Code] {
			seen[l.Code] = true
			codes = append(codes, l.Code)
		}
	}
	return codes
}

// FirstCode returns the code of the first invite link, or "" when there is none.
func (f *Finder) FirstCode() string {
	if len(f.Links) == 0 {
		return ""
	}
	return f.Links[0].Code
}
