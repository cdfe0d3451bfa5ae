package hnweb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"fnid", `<input type="hidden" name="fnid" value="abc123">`, "abc123"},
		{"extra whitespace", "<input name=\"fnid\"\n   value=\"xyz\">", "xyz"},
		{"first match wins", `name="fnid" value="one" name="fnid" value="two"`, "one"},
		{"absent", `<html><body>nothing</body></html>`, ""},
		{"empty value", `name="fnid" value=""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractToken(fnidPattern, tt.body))
		})
	}

	assert.Equal(t, "hmactoken789", extractToken(hmacPattern, `<input type="hidden" name="hmac" value="hmactoken789">`))
}

func TestVoteLink(t *testing.T) {
	tests := []struct {
		name string
		body string
		id   int
		want string
	}{
		{
			name: "unescapes entities",
			body: `<a id="up_42" href="vote?id=42&amp;how=up&amp;auth=s3cret&amp;goto=news">`,
			id:   42,
			want: "vote?id=42&how=up&auth=s3cret&goto=news",
		},
		{
			name: "strips leading slash",
			body: `<a id="up_42" href="/vote?id=42&amp;how=up">`,
			id:   42,
			want: "vote?id=42&how=up",
		},
		{
			name: "other item",
			body: `<a id="up_7" href="vote?id=7&amp;how=up">`,
			id:   42,
		},
		{
			name: "id prefix does not match",
			body: `<a id="up_420" href="vote?id=420&amp;how=up">`,
			id:   42,
		},
		{
			name: "no anchor",
			body: `<a id="un_42" href="vote?id=42&amp;how=un">`,
			id:   42,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, voteLink(tt.body, tt.id))
		})
	}
}

func TestPhrases(t *testing.T) {
	assert.True(t, rateLimited("You're submitting too fast."))
	assert.True(t, rateLimited("Please slow down."))
	assert.True(t, rateLimited("Please limit submissions to 4 per hour."))
	assert.False(t, rateLimited("All good"))

	assert.True(t, tokenExpired("Unknown or expired link."))
	assert.True(t, tokenExpired("This form has expired"))
	assert.False(t, tokenExpired("unknown")) // case sensitive
}

func TestCodeRetryable(t *testing.T) {
	retryable := map[Code]bool{
		CodeAuthRequired:  false,
		CodeAuthFailed:    false,
		CodeCSRFExpired:   true,
		CodeRateLimited:   true,
		CodeNotFound:      false,
		CodeNetworkError:  true,
		CodeInvalidInput:  false,
		CodeSubmitFailed:  false,
		CodeVoteFailed:    false,
		CodeCommentFailed: false,
	}
	for code, want := range retryable {
		assert.Equal(t, want, code.Retryable(), code)
	}
}
