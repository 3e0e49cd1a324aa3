// Package library keeps the append-only list of generated stories and the
// reading cursor over the loaded story's pages.
package library

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rbright/storybook/internal/layout"
)

// ErrNoStory indicates an operation that needs a loaded story ran on an empty library.
var ErrNoStory = errors.New("library is empty")

// Story is one generated story. It never changes after Append.
type Story struct {
	Title string
	Body  string
	Order int
}

// Paginator lays out a story into pages for the current viewport.
type Paginator func(Story) []layout.Page

// Cursor is a snapshot of the reading position.
type Cursor struct {
	Story      Story
	StoryIndex int
	StoryCount int
	Page       layout.Page
	PageIndex  int
	PageCount  int
}

// AtFirstPage reports whether the cursor is on page 0 of story 0.
func (c Cursor) AtFirstPage() bool {
	return c.StoryIndex == 0 && c.PageIndex == 0
}

// Library is safe for concurrent use.
type Library struct {
	paginate Paginator

	mu      sync.RWMutex
	stories []Story
	current int
	pages   []layout.Page
	page    int
}

// New constructs an empty library.
func New(paginate Paginator) *Library {
	if paginate == nil {
		paginate = func(s Story) []layout.Page {
			return layout.Engine{}.Paginate(s.Title, s.Body, layout.Viewport{Width: 80, Height: 24}, layout.CellMetrics{}, layout.CellMetrics{})
		}
	}
	return &Library{paginate: paginate, current: -1}
}

// Append adds a story at the end of the reading order and returns it.
func (l *Library) Append(title string, body string) Story {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Story{Title: title, Body: body, Order: len(l.stories)}
	l.stories = append(l.stories, s)
	return s
}

// Len returns the number of stories.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.stories)
}

// LoadStory paginates the story at index and resets the page cursor to 0.
func (l *Library) LoadStory(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.stories) {
		return fmt.Errorf("load story %d of %d: index out of range", index, len(l.stories))
	}
	l.load(index)
	l.page = 0
	return nil
}

// Reload recomputes the loaded story's pages, keeping the page cursor in range.
func (l *Library) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < 0 {
		return ErrNoStory
	}
	l.load(l.current)
	if l.page >= len(l.pages) {
		l.page = len(l.pages) - 1
	}
	return nil
}

// Current returns the reading position. ok is false when no story is loaded.
func (l *Library) Current() (Cursor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.current < 0 || len(l.pages) == 0 {
		return Cursor{}, false
	}
	return Cursor{
		Story:      l.stories[l.current],
		StoryIndex: l.current,
		StoryCount: len(l.stories),
		Page:       l.pages[l.page],
		PageIndex:  l.page,
		PageCount:  len(l.pages),
	}, true
}

// AdvancePage moves to the next page of the loaded story. It returns false
// on the story's last page.
func (l *Library) AdvancePage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < 0 || l.page+1 >= len(l.pages) {
		return false
	}
	l.page++
	return true
}

// NextStory loads the following story at page 0. It returns false on the last story.
func (l *Library) NextStory() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < 0 || l.current+1 >= len(l.stories) {
		return false
	}
	l.load(l.current + 1)
	l.page = 0
	return true
}

// RetreatPage moves one page back, crossing into the previous story's last
// page. It returns false, leaving the cursor unchanged, on the first page
// of the first story.
func (l *Library) RetreatPage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current < 0 {
		return false
	}
	if l.page > 0 {
		l.page--
		return true
	}
	if l.current == 0 {
		return false
	}
	l.load(l.current - 1)
	l.page = len(l.pages) - 1
	return true
}

// load must be called with mu held.
func (l *Library) load(index int) {
	pages := l.paginate(l.stories[index])
	if len(pages) == 0 {
		pages = []layout.Page{{}}
	}
	l.current = index
	l.pages = pages
}
