// Package api exposes the Hacker News read and write operations as named tools over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danielmmetz/hn-tools/hn"
	"github.com/danielmmetz/hn-tools/hnweb"
	"github.com/danielmmetz/hn-tools/readability"
	"github.com/danielmmetz/hn-tools/session"
	"github.com/danielmmetz/hn-tools/sse"
)

// Param documents one tool argument in the catalogue.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description"`
}

// Tool is a named operation callable with a JSON object of arguments.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`

	call func(ctx context.Context, args json.RawMessage) (any, error)
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is what every tool call returns, successful or not.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type errorPayload struct {
	Error     hnweb.Code `json:"error"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
}

// Deps are the collaborators the tools call into. Events and Articles may be nil.
type Deps struct {
	Reader   *hn.Client
	Writer   *hnweb.Client
	Articles *readability.Extractor
	Events   *sse.Broker
	Metrics  *Metrics
}

// Registry holds the tool catalogue and dispatches calls to it.
type Registry struct {
	deps  Deps
	tools map[string]*Tool
}

func NewRegistry(deps Deps) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	r := &Registry{deps: deps, tools: map[string]*Tool{}}
	r.registerReadTools()
	r.registerWriteTools()
	return r
}

func (r *Registry) add(t *Tool) { r.tools[t.Name] = t }

func (r *Registry) session() *session.Manager { return r.deps.Writer.Session() }

// Tools lists the catalogue sorted by name.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named tool. ok is false if no such tool exists.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (res *Result, ok bool) {
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	log := slog.With("tool", name, "call_id", uuid.NewString())

	payload, err := t.call(ctx, args)
	if err != nil {
		res, code := errorResult(err)
		r.deps.Metrics.observe(name, string(code), start)
		log.Warn("tool call failed", "code", code, "error", err, "duration", time.Since(start))
		return res, true
	}

	res, err = textResult(payload)
	if err != nil {
		res, code := errorResult(err)
		r.deps.Metrics.observe(name, string(code), start)
		log.Error("render tool result", "error", err)
		return res, true
	}
	r.deps.Metrics.observe(name, "ok", start)
	log.Debug("tool call succeeded", "duration", time.Since(start))
	return res, true
}

func (r *Registry) publish(eventType string, payload any) {
	if r.deps.Events != nil {
		r.deps.Events.Publish(eventType, payload)
	}
}

func textResult(payload any) (*Result, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Result{Content: []Content{{Type: "text", Text: string(b)}}}, nil
}

// errorResult renders err as a failure payload. Anything that is not a classified
// *hnweb.Error is reported as a network error.
func errorResult(err error) (*Result, hnweb.Code) {
	var werr *hnweb.Error
	if !errors.As(err, &werr) {
		werr = &hnweb.Error{Code: hnweb.CodeNetworkError, Message: err.Error()}
	}
	b, _ := json.MarshalIndent(errorPayload{
		Error:     werr.Code,
		Message:   werr.Message,
		Retryable: werr.Retryable(),
	}, "", "  ")
	return &Result{Content: []Content{{Type: "text", Text: string(b)}}, IsError: true}, werr.Code
}

func invalid(format string, args ...any) error {
	return &hnweb.Error{Code: hnweb.CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &hnweb.Error{Code: hnweb.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// decodeArgs unmarshals args into v.
func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return invalid("Invalid arguments: %v", err)
	}
	return nil
}

// intArg returns *p, or def when the argument was omitted.
func intArg(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid("%s must be between %d and %d", name, lo, hi)
	}
	return nil
}

func checkID(name string, v int) error {
	if v <= 0 {
		return invalid("%s must be a positive integer", name)
	}
	return nil
}
