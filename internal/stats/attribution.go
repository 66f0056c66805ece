package stats

import (
	"regexp"
	"strings"

	"github.com/cam3ron2/year-in-code/internal/githubapi"
)

const noReplyEmailSuffix = "@users.noreply.github.com"

// Signal names the identity field that tied a commit to the user.
type Signal string

// Attribution signals, in evaluation order.
const (
	SignalNone           Signal = ""
	SignalAuthorLogin    Signal = "author_login"
	SignalAuthorEmail    Signal = "author_email"
	SignalCoAuthor       Signal = "co_author"
	SignalCommitterLogin Signal = "committer_login"
	SignalCommitterEmail Signal = "committer_email"
)

var coAuthorTrailer = regexp.MustCompile(`(?mi)^\s*co-authored-by:\s*(.*?)\s*<([^>]+)>\s*$`)

// Matcher decides whether a commit belongs to one user. It holds no state
// beyond the identity, so the verdict depends only on the commit.
type Matcher struct {
	login  string
	emails map[string]struct{}
}

// NewMatcher builds a Matcher for login and its verified addresses.
func NewMatcher(login string, emails []string) Matcher {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		normalized := normalizeEmail(email)
		if normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return Matcher{
		login:  strings.ToLower(strings.TrimSpace(login)),
		emails: set,
	}
}

// Match returns the signal that attributes commit to the user, or SignalNone.
// A merge commit matched only through its committer is rejected.
func (m Matcher) Match(commit githubapi.Commit) Signal {
	if m.isLogin(commit.AuthorLogin) {
		return SignalAuthorLogin
	}
	if m.isEmail(commit.AuthorEmail) {
		return SignalAuthorEmail
	}
	for _, email := range coAuthorEmails(commit.Message) {
		if m.isEmail(email) {
			return SignalCoAuthor
		}
	}

	committer := SignalNone
	switch {
	case m.isLogin(commit.CommitterLogin):
		committer = SignalCommitterLogin
	case m.isEmail(commit.CommitterEmail):
		committer = SignalCommitterEmail
	}
	if committer != SignalNone && isMergeCommit(commit) {
		return SignalNone
	}
	return committer
}

func (m Matcher) isLogin(login string) bool {
	if m.login == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(login), m.login)
}

func (m Matcher) isEmail(email string) bool {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return false
	}
	if _, ok := m.emails[normalized]; ok {
		return true
	}
	return m.isLogin(inferLoginFromNoReplyEmail(normalized))
}

func isMergeCommit(commit githubapi.Commit) bool {
	return commit.ParentCount > 1 || strings.HasPrefix(commit.Message, "Merge")
}

func coAuthorEmails(message string) []string {
	if !strings.Contains(strings.ToLower(message), "co-authored-by") {
		return nil
	}
	matches := coAuthorTrailer.FindAllStringSubmatch(message, -1)
	emails := make([]string, 0, len(matches))
	for _, match := range matches {
		emails = append(emails, match[2])
	}
	return emails
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// inferLoginFromNoReplyEmail maps [id+]login@users.noreply.github.com to login.
func inferLoginFromNoReplyEmail(email string) string {
	lowered := normalizeEmail(email)
	if !strings.HasSuffix(lowered, noReplyEmailSuffix) {
		return ""
	}
	localPart := strings.TrimSpace(strings.TrimSuffix(lowered, noReplyEmailSuffix))
	if localPart == "" {
		return ""
	}
	parts := strings.SplitN(localPart, "+", 2)
	return strings.TrimSpace(parts[len(parts)-1])
}
