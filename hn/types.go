package hn

// Item represents a Hacker News item (story, comment, job, poll or pollopt).
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by,omitempty"`
	Time        int64  `json:"time,omitempty"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Score       int    `json:"score,omitempty"`
	Descendants int    `json:"descendants,omitempty"`
	Kids        []int  `json:"kids,omitempty"`
	Parent      int    `json:"parent,omitempty"`
	Poll        int    `json:"poll,omitempty"`
	Parts       []int  `json:"parts,omitempty"`
	Dead        bool   `json:"dead,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// CommentNode is a comment restricted to the fields shown in a thread, with its replies.
type CommentNode struct {
	ID       int            `json:"id"`
	By       string         `json:"by,omitempty"`
	Time     int64          `json:"time,omitempty"`
	Text     string         `json:"text,omitempty"`
	Dead     bool           `json:"dead,omitempty"`
	Deleted  bool           `json:"deleted,omitempty"`
	Children []*CommentNode `json:"children"`
}

// ItemWithComments is an item together with its (bounded) comment tree.
type ItemWithComments struct {
	*Item
	Comments []*CommentNode `json:"comments"`
}

type User struct {
	ID        string `json:"id"`
	Created   int64  `json:"created"`
	Karma     int    `json:"karma"`
	About     string `json:"about,omitempty"`
	Submitted []int  `json:"submitted,omitempty"`
}

// Updates lists recently changed items and profiles.
type Updates struct {
	Items    []int    `json:"items"`
	Profiles []string `json:"profiles"`
}

// Category selects one of the fixed story lists.
type Category string

const (
	CategoryTop  Category = "top"
	CategoryNew  Category = "new"
	CategoryBest Category = "best"
	CategoryAsk  Category = "ask"
	CategoryShow Category = "show"
	CategoryJob  Category = "job"
)

var categoryEndpoints = map[Category]string{
	CategoryTop:  "topstories",
	CategoryNew:  "newstories",
	CategoryBest: "beststories",
	CategoryAsk:  "askstories",
	CategoryShow: "showstories",
	CategoryJob:  "jobstories",
}

// Categories returns every supported category in display order.
func Categories() []Category {
	return []Category{CategoryTop, CategoryNew, CategoryBest, CategoryAsk, CategoryShow, CategoryJob}
}

// Valid reports whether c names a known story list.
func (c Category) Valid() bool {
	_, ok := categoryEndpoints[c]
	return ok
}

const (
	SortRelevance = "relevance"
	SortDate      = "date"
)

// SearchParams are the inputs of an Algolia search.
type SearchParams struct {
	Query          string
	SortBy         string // "date" or anything else for relevance
	Tags           string
	Page           int
	HitsPerPage    int // 0 means the default of 20
	NumericFilters string
}

type SearchHit struct {
	ObjectID    string   `json:"objectID"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Author      string   `json:"author"`
	Points      *int     `json:"points,omitempty"`
	NumComments *int     `json:"num_comments,omitempty"`
	CreatedAt   string   `json:"created_at"`
	StoryText   string   `json:"story_text,omitempty"`
	CommentText string   `json:"comment_text,omitempty"`
	Tags        []string `json:"_tags"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Hits        []SearchHit `json:"hits"`
	NbHits      int         `json:"nbHits"`
	Page        int         `json:"page"`
	NbPages     int         `json:"nbPages"`
	HitsPerPage int         `json:"hitsPerPage"`
}
