package dramabox

import "encoding/json"

// Envelope is the response wrapper of every upstream endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Drama is a catalog entry as returned by the feed and search endpoints.
type Drama struct {
	BookID       string   `json:"bookId"`
	BookName     string   `json:"bookName"`
	Cover        string   `json:"cover,omitempty"`
	CoverWap     string   `json:"coverWap,omitempty"`
	ChapterCount int      `json:"chapterCount,omitempty"`
	Introduction string   `json:"introduction,omitempty"`
	TagNames     []string `json:"tagNames,omitempty"`
	PlayCount    string   `json:"playCount,omitempty"`
	Protagonist  string   `json:"protagonist,omitempty"`
}

// CoverURL returns the best available cover image.
func (d Drama) CoverURL() string {
	if d.CoverWap != "" {
		return d.CoverWap
	}
	return d.Cover
}

// DramaDetail is the payload of the detail endpoint. Some upstream versions
// nest the drama under "book".
type DramaDetail struct {
	Drama
	Book *Drama `json:"book,omitempty"`
}

// Resolved returns the nested drama when present, else the flat one.
func (d DramaDetail) Resolved() Drama {
	if d.Book != nil && d.Book.BookID != "" {
		return *d.Book
	}
	return d.Drama
}

// Episode is one chapter of a drama.
type Episode struct {
	ChapterID    string `json:"chapterId"`
	ChapterName  string `json:"chapterName"`
	ChapterIndex int    `json:"chapterIndex"`
	ChapterImg   string `json:"chapterImg,omitempty"`
	VideoPath    string `json:"videoPath,omitempty"`
}
