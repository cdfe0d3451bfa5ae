package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danielmmetz/hn-tools/sse"
)

const maxTitleLength = 80

type statusPayload struct {
	Status   string `json:"status"`
	Username string `json:"username,omitempty"`
	Title    string `json:"title,omitempty"`
	ItemID   int    `json:"itemId,omitempty"`
	ParentID int    `json:"parentId,omitempty"`
}

type authStatusPayload struct {
	LoggedIn   bool    `json:"loggedIn"`
	Username   *string `json:"username"`
	LoggedInAt *string `json:"loggedInAt"`
}

func (r *Registry) registerWriteTools() {
	r.add(&Tool{
		Name:        "hn_login",
		Description: "Log in to Hacker News. Required before submitting, voting or commenting.",
		Params: []Param{
			{Name: "username", Type: "string", Required: true, Description: "Account name"},
			{Name: "password", Type: "string", Required: true, Description: "Account password"},
		},
		call: r.login,
	})
	r.add(&Tool{
		Name:        "hn_logout",
		Description: "Forget the current login.",
		Params:      []Param{},
		call:        r.logout,
	})
	r.add(&Tool{
		Name:        "hn_auth_status",
		Description: "Report whether a login is active.",
		Params:      []Param{},
		call:        r.authStatus,
	})
	r.add(&Tool{
		Name:        "hn_submit_story",
		Description: "Submit a link or text post. Provide url, text, or both.",
		Params: []Param{
			{Name: "title", Type: "string", Required: true, Description: fmt.Sprintf("Story title, at most %d characters", maxTitleLength)},
			{Name: "url", Type: "string", Description: "Absolute http(s) link"},
			{Name: "text", Type: "string", Description: "Body text"},
		},
		call: r.submitStory,
	})
	r.add(&Tool{
		Name:        "hn_upvote",
		Description: "Upvote a story or comment.",
		Params:      []Param{{Name: "itemId", Type: "integer", Required: true, Description: "Item to vote on"}},
		call:        r.upvote,
	})
	r.add(&Tool{
		Name:        "hn_post_comment",
		Description: "Reply to a story or comment.",
		Params: []Param{
			{Name: "parentId", Type: "integer", Required: true, Description: "Story or comment to reply to"},
			{Name: "text", Type: "string", Required: true, Description: "Comment body"},
		},
		call: r.postComment,
	})
}

func (r *Registry) publishSession() {
	st, _ := r.authStatus(context.Background(), nil)
	r.publish(sse.EventSessionChanged, st)
}

func (r *Registry) login(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Username == "" || p.Password == "" {
		return nil, invalid("username and password are required")
	}

	if err := r.deps.Writer.Login(ctx, p.Username, p.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	r.publishSession()
	return statusPayload{Status: "logged_in", Username: p.Username}, nil
}

func (r *Registry) logout(context.Context, json.RawMessage) (any, error) {
	r.deps.Writer.Logout()
	r.publishSession()
	return statusPayload{Status: "logged_out"}, nil
}

// authStatus reports the stored identity even after the session has expired, so
// callers can tell who needs to log in again.
func (r *Registry) authStatus(context.Context, json.RawMessage) (any, error) {
	sess := r.session()
	out := authStatusPayload{LoggedIn: sess.LoggedIn()}
	st := sess.State()
	if st.Username != "" {
		out.Username = &st.Username
	}
	if !st.LoggedInAt.IsZero() {
		at := st.LoggedInAt.UTC().Format(time.RFC3339)
		out.LoggedInAt = &at
	}
	return out, nil
}

func (r *Registry) submitStory(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(p.Title); n == 0 || n > maxTitleLength {
		return nil, invalid("title must be between 1 and %d characters", maxTitleLength)
	}
	if p.URL == "" && p.Text == "" {
		return nil, invalid("Either url or text must be provided")
	}
	if p.URL != "" {
		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("url must be an absolute http or https URL")
		}
	}

	if err := r.deps.Writer.SubmitStory(ctx, p.Title, p.URL, p.Text); err != nil {
		return nil, fmt.Errorf("submit story: %w", err)
	}
	r.publish(sse.EventWriteCompleted, map[string]any{"action": "submit", "title": p.Title})
	return statusPayload{Status: "submitted", Title: p.Title}, nil
}

func (r *Registry) upvote(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		ItemID int `json:"itemId"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if err := checkID("itemId", p.ItemID); err != nil {
		return nil, err
	}

	if err := r.deps.Writer.Upvote(ctx, p.ItemID); err != nil {
		return nil, fmt.Errorf("upvote %d: %w", p.ItemID, err)
	}
	r.publish(sse.EventWriteCompleted, map[string]any{"action": "upvote", "itemId": p.ItemID})
	return statusPayload{Status: "upvoted", ItemID: p.ItemID}, nil
}

func (r *Registry) postComment(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		ParentID int    `json:"parentId"`
		Text     string `json:"text"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if err := checkID("parentId", p.ParentID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, invalid("text is required")
	}

	if err := r.deps.Writer.PostComment(ctx, p.ParentID, p.Text); err != nil {
		return nil, fmt.Errorf("post comment on %d: %w", p.ParentID, err)
	}
	r.publish(sse.EventWriteCompleted, map[string]any{"action": "comment", "parentId": p.ParentID})
	return statusPayload{Status: "commented", ParentID: p.ParentID}, nil
}
