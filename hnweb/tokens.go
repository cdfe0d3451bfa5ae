package hnweb

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	fnidPattern = regexp.MustCompile(`name="fnid"\s+value="([^"]+)"`)
	hmacPattern = regexp.MustCompile(`name="hmac"\s+value="([^"]+)"`)
)

var (
	rateLimitPhrases = []string{"too fast", "slow down", "limit submissions"}
	expiredPhrases   = []string{"Unknown", "expired"}
)

// extractToken returns the first capture of re in body, or "".
func extractToken(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// voteLink returns the unescaped href of the upvote anchor for itemID, or "".
func voteLink(body string, itemID int) string {
	re := regexp.MustCompile(`id="up_` + strconv.Itoa(itemID) + `"\s+href="([^"]+)"`)
	href := extractToken(re, body)
	if href == "" {
		return ""
	}
	return strings.TrimPrefix(html.UnescapeString(href), "/")
}

func containsAny(body string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(body, p) {
			return true
		}
	}
	return false
}

func rateLimited(body string) bool { return containsAny(body, rateLimitPhrases) }

func tokenExpired(body string) bool { return containsAny(body, expiredPhrases) }
