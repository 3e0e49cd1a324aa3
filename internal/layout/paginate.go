package layout

import "strings"

const (
	DefaultLineGap      = 4
	DefaultParagraphGap = 20
)

// Line is one positioned line of text on a page.
type Line struct {
	Text   string
	X      int
	Y      int
	Height int
	Title  bool
}

// Page is an immutable set of positioned lines bound to one viewport.
type Page struct {
	Viewport Viewport
	Lines    []Line
}

// Bottom returns the lowest occupied row of the page.
func (p Page) Bottom() int {
	bottom := 0
	for _, line := range p.Lines {
		if y := line.Y + line.Height; y > bottom {
			bottom = y
		}
	}
	return bottom
}

// Text returns the page lines joined by newlines.
func (p Page) Text() string {
	parts := make([]string, 0, len(p.Lines))
	for _, line := range p.Lines {
		parts = append(parts, line.Text)
	}
	return strings.Join(parts, "\n")
}

// Engine holds the fixed vertical spacing used during pagination.
type Engine struct {
	LineGap      int
	ParagraphGap int
}

// DefaultEngine returns the engine used for pixel-sized viewports.
func DefaultEngine() Engine {
	return Engine{LineGap: DefaultLineGap, ParagraphGap: DefaultParagraphGap}
}

// Paginate lays out title and body into pages. The result depends only on
// its arguments and always holds at least one page.
func (e Engine) Paginate(title string, body string, vp Viewport, titleMetrics Metrics, bodyMetrics Metrics) []Page {
	p := paginator{engine: e, viewport: vp}

	titleText := strings.Join(strings.Fields(StripMarkup(title)), " ")
	if titleText != "" {
		for _, text := range Wrap(titleText, vp.Width, titleMetrics) {
			x := (vp.Width - titleMetrics.Width(text)) / 2
			if x < 0 {
				x = 0
			}
			p.place(text, x, titleMetrics.LineHeight(), true)
		}
		p.needGap = true
	}

	for _, paragraph := range Paragraphs(StripMarkup(body)) {
		lines := Wrap(paragraph, vp.Width, bodyMetrics)
		if len(lines) == 0 {
			continue
		}
		if p.needGap {
			p.gap(e.ParagraphGap)
		}
		for _, text := range lines {
			p.place(text, 0, bodyMetrics.LineHeight(), false)
		}
		p.needGap = true
	}

	return p.finish()
}

type paginator struct {
	engine   Engine
	viewport Viewport
	pages    []Page
	current  []Line
	y        int
	needGap  bool
}

func (p *paginator) place(text string, x int, height int, title bool) {
	if p.y+height > p.viewport.Height && len(p.current) > 0 {
		p.seal()
	}
	p.current = append(p.current, Line{Text: text, X: x, Y: p.y, Height: height, Title: title})
	p.y += height + p.engine.LineGap
}

func (p *paginator) gap(size int) {
	if len(p.current) == 0 {
		return
	}
	if p.y+size > p.viewport.Height {
		p.seal()
		return
	}
	p.y += size
}

func (p *paginator) seal() {
	p.pages = append(p.pages, Page{Viewport: p.viewport, Lines: p.current})
	p.current = nil
	p.y = 0
}

func (p *paginator) finish() []Page {
	if len(p.current) > 0 || len(p.pages) == 0 {
		p.seal()
	}
	return p.pages
}
