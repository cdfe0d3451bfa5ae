// Package hnweb performs logged-in actions on news.ycombinator.com by driving its HTML
// forms the way a browser session would.
package hnweb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/danielmmetz/hn-tools/session"
)

const (
	DefaultWebBase = "https://news.ycombinator.com"

	maxBodySize = 2 << 20
	userAgent   = "Mozilla/5.0 (compatible; hn-tools/1.0)"

	loginRedirectMarker = "URL=news"
	rateLimitedMessage  = "Rate limited, wait before retrying"
)

// Doer performs a single HTTP round trip. It must not follow redirects: a 302 from a
// form post is how success is recognised. NewHTTPClient returns a suitable one.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns an *http.Client that hands redirects back to the caller.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Client performs write actions on behalf of the login recorded in its session.
//
// Every method returns nil on success, an *Error for a classified failure, or any
// other error when a request could not be made at all.
type Client struct {
	http    Doer
	webBase string
	session *session.Manager
}

type Option func(*Client)

func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

func WithWebBase(base string) Option {
	return func(c *Client) { c.webBase = strings.TrimSuffix(base, "/") }
}

func NewClient(sess *session.Manager, opts ...Option) *Client {
	c := &Client{
		http:    NewHTTPClient(30 * time.Second),
		webBase: DefaultWebBase,
		session: sess,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the client writes on behalf of.
func (c *Client) Session() *session.Manager { return c.session }

type page struct {
	status  int
	body    string
	cookies []*http.Cookie
}

func (p *page) redirected() bool { return p.status == http.StatusFound }

func (p *page) ok() bool { return p.status >= 200 && p.status <= 299 }

// send issues one request against the web base. A non-nil form makes it a url-encoded POST.
func (c *Client) send(ctx context.Context, path string, form url.Values, cookie string) (*page, error) {
	method := http.MethodGet
	var body io.Reader
	if form != nil {
		method = http.MethodPost
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.webBase+"/"+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s /%s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read /%s: %w", path, err)
	}
	return &page{status: resp.StatusCode, body: string(b), cookies: resp.Cookies()}, nil
}

// requireAuth returns the session cookie, or AUTH_REQUIRED when there is no usable login.
func (c *Client) requireAuth() (string, error) {
	if !c.session.LoggedIn() {
		return "", fail(CodeAuthRequired, "Not logged in: call hn_login first")
	}
	return c.session.Cookie(), nil
}

// Login posts credentials and records the session on success. It never retries.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"acct": {username},
		"pw":   {password},
		"goto": {"news"},
	}
	p, err := c.send(ctx, "login", form, "")
	if err != nil {
		return err
	}

	for _, ck := range p.cookies {
		if ck.Name == "user" && ck.Value != "" {
			c.session.Login(username, "user="+ck.Value)
			slog.Info("hnweb: logged in", "username", username)
			return nil
		}
	}
	if strings.Contains(p.body, loginRedirectMarker) {
		c.session.Login(username, "user="+username)
		slog.Info("hnweb: logged in without session cookie", "username", username)
		return nil
	}
	if strings.Contains(p.body, "Bad login") {
		return fail(CodeAuthFailed, "Invalid username or password")
	}
	return fail(CodeAuthFailed, "Login failed")
}

// Logout forgets the current login. Nothing is sent to the site.
func (c *Client) Logout() {
	c.session.Logout()
}

// formAction is a post guarded by a single-use token scraped from a preceding page.
type formAction struct {
	name        string
	tokenPath   string
	tokenField  *regexp.Regexp
	notFoundMsg string
	missingCode Code
	missingMsg  string
	postPath    string
	form        func(token string) url.Values
	succeeded   func(p *page) bool
	failCode    Code
}

// run drives a formAction: fetch token, post, classify, and on an expired token start
// over exactly once with a fresh one.
func (c *Client) run(ctx context.Context, a formAction) error {
	cookie, err := c.requireAuth()
	if err != nil {
		return err
	}

	tp, err := c.send(ctx, a.tokenPath, nil, cookie)
	if err != nil {
		return err
	}
	if tp.status == http.StatusNotFound {
		return fail(CodeNotFound, "%s", a.notFoundMsg)
	}
	token := extractToken(a.tokenField, tp.body)
	if token == "" {
		return fail(a.missingCode, "%s", a.missingMsg)
	}

	p, err := c.send(ctx, a.postPath, a.form(token), cookie)
	if err != nil {
		return err
	}
	switch {
	case rateLimited(p.body):
		return fail(CodeRateLimited, rateLimitedMessage)
	case a.succeeded(p):
		return nil
	case !tokenExpired(p.body):
		return fail(a.failCode, "%s failed", a.name)
	}

	slog.Info("hnweb: token rejected, retrying once", "action", a.name)

	tp, err = c.send(ctx, a.tokenPath, nil, cookie)
	if err != nil {
		return err
	}
	token = extractToken(a.tokenField, tp.body)
	if token == "" {
		return fail(CodeCSRFExpired, "CSRF token expired and retry failed")
	}

	p, err = c.send(ctx, a.postPath, a.form(token), cookie)
	if err != nil {
		return err
	}
	switch {
	case rateLimited(p.body):
		return fail(CodeRateLimited, rateLimitedMessage)
	case a.succeeded(p):
		return nil
	}
	return fail(a.failCode, "%s failed after CSRF retry", a.name)
}

// SubmitStory posts a link (url) or text post. At least one of url and text should be set.
func (c *Client) SubmitStory(ctx context.Context, title, storyURL, text string) error {
	return c.run(ctx, formAction{
		name:        "Submit",
		tokenPath:   "submit",
		tokenField:  fnidPattern,
		notFoundMsg: "Submit page not found",
		missingCode: CodeCSRFExpired,
		missingMsg:  "Could not extract CSRF token from submit page",
		postPath:    "r",
		form: func(token string) url.Values {
			v := url.Values{"fnid": {token}, "title": {title}}
			if storyURL != "" {
				v.Set("url", storyURL)
			}
			if text != "" {
				v.Set("text", text)
			}
			return v
		},
		succeeded: func(p *page) bool {
			return p.redirected() || strings.Contains(p.body, "URL=newest") || strings.Contains(p.body, "URL=new")
		},
		failCode: CodeSubmitFailed,
	})
}

// PostComment replies to parentID, which may be a story or another comment.
func (c *Client) PostComment(ctx context.Context, parentID int, text string) error {
	ref := itemPath(parentID)
	return c.run(ctx, formAction{
		name:        "Comment",
		tokenPath:   ref,
		tokenField:  hmacPattern,
		notFoundMsg: fmt.Sprintf("Item %d not found", parentID),
		missingCode: CodeCommentFailed,
		missingMsg:  "Could not find comment form CSRF token",
		postPath:    "comment",
		form: func(token string) url.Values {
			return url.Values{
				"parent": {strconv.Itoa(parentID)},
				"text":   {text},
				"hmac":   {token},
				"goto":   {ref},
			}
		},
		succeeded: func(p *page) bool {
			return p.redirected() || strings.Contains(p.body, "URL=") || strings.Contains(p.body, ref)
		},
		failCode: CodeCommentFailed,
	})
}

// Upvote follows the vote link on the item's page. Vote links are single-use anchors
// rather than forms, so a failed vote is never retried.
func (c *Client) Upvote(ctx context.Context, itemID int) error {
	cookie, err := c.requireAuth()
	if err != nil {
		return err
	}

	ip, err := c.send(ctx, itemPath(itemID), nil, cookie)
	if err != nil {
		return err
	}
	if ip.status == http.StatusNotFound {
		return fail(CodeNotFound, "Item %d not found", itemID)
	}
	link := voteLink(ip.body, itemID)
	if link == "" {
		return fail(CodeVoteFailed, "Could not find vote link, the item may already be voted on")
	}

	vp, err := c.send(ctx, link, nil, cookie)
	if err != nil {
		return err
	}
	switch {
	case rateLimited(vp.body):
		return fail(CodeRateLimited, rateLimitedMessage)
	case vp.redirected(), strings.Contains(vp.body, "URL="), vp.ok():
		return nil
	}
	return fail(CodeVoteFailed, "Vote failed")
}

func itemPath(id int) string { return "item?id=" + strconv.Itoa(id) }
