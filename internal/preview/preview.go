// Package preview renders file contents for in-browser viewing: Markdown via
// Goldmark, other text through Chroma syntax highlighting.
package preview

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Category tells the client which viewer handles a file.
type Category string

// Viewer categories.
const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
	CategoryPDF   Category = "pdf"
	CategoryText  Category = "text"
	CategoryOther Category = "other"
)

var categories = map[string]Category{
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage, "gif": CategoryImage,
	"svg": CategoryImage, "webp": CategoryImage, "bmp": CategoryImage, "ico": CategoryImage,

	"mp4": CategoryVideo, "webm": CategoryVideo, "mov": CategoryVideo, "avi": CategoryVideo,
	"mkv": CategoryVideo, "flv": CategoryVideo, "wmv": CategoryVideo,

	"mp3": CategoryAudio, "wav": CategoryAudio, "ogg": CategoryAudio, "flac": CategoryAudio,
	"aac": CategoryAudio, "m4a": CategoryAudio,

	"pdf": CategoryPDF,

	"txt": CategoryText, "md": CategoryText, "markdown": CategoryText, "html": CategoryText,
	"css": CategoryText, "js": CategoryText, "jsx": CategoryText, "ts": CategoryText,
	"tsx": CategoryText, "json": CategoryText, "xml": CategoryText, "yaml": CategoryText,
	"yml": CategoryText, "csv": CategoryText, "toml": CategoryText, "ini": CategoryText,
	"go": CategoryText, "py": CategoryText, "sh": CategoryText,
}

// CategoryOf returns the viewer category for a lower-cased extension.
func CategoryOf(ext string) Category {
	if c, ok := categories[strings.ToLower(ext)]; ok {
		return c
	}
	return CategoryOther
}

// TOCItem represents a table of contents entry
type TOCItem struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

// Result is a rendered preview. HTML is empty for categories the browser
// displays natively from the raw file.
type Result struct {
	Category Category  `json:"category"`
	HTML     string    `json:"html,omitempty"`
	TOC      []TOCItem `json:"toc,omitempty"`
	Title    string    `json:"title,omitempty"`
}

// Renderer turns file contents into preview HTML.
type Renderer struct {
	md        goldmark.Markdown
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

// NewRenderer creates a renderer with GFM extensions and class-based
// highlighting.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &Renderer{
		md:        md,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.WithLineNumbers(true)),
		style:     styles.Get("monokai"),
	}
}

// Render previews the file called name with contents src.
func (r *Renderer) Render(name string, src []byte) (*Result, error) {
	ext := extensionOf(name)
	cat := CategoryOf(ext)
	switch {
	case ext == "md" || ext == "markdown":
		return r.renderMarkdown(src)
	case cat == CategoryText:
		out, err := r.highlight(name, src)
		if err != nil {
			return nil, err
		}
		return &Result{Category: cat, HTML: out}, nil
	default:
		return &Result{Category: cat}, nil
	}
}

func (r *Renderer) renderMarkdown(src []byte) (*Result, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, err
	}

	toc := r.extractTOC(src)
	title := ""
	if len(toc) > 0 {
		title = toc[0].Title
	}

	return &Result{
		Category: CategoryText,
		HTML:     buf.String(),
		TOC:      toc,
		Title:    title,
	}, nil
}

func (r *Renderer) highlight(name string, src []byte) (string, error) {
	lexer := lexers.Match(name)
	if lexer == nil {
		lexer = lexers.Analyse(string(src))
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, string(src))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, it); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractTOC walks the AST to extract headings
func (r *Renderer) extractTOC(source []byte) []TOCItem {
	reader := text.NewReader(source)
	doc := r.md.Parser().Parse(reader)

	var toc []TOCItem
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := n.(*ast.Heading); ok {
			title := extractText(heading, source)
			toc = append(toc, TOCItem{
				Level:  heading.Level,
				Title:  title,
				Anchor: generateAnchor(title),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil
	}

	return toc
}

func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

var (
	anchorStrip  = regexp.MustCompile(`[^a-z0-9\-\p{Han}\p{Hiragana}\p{Katakana}]`)
	anchorHyphen = regexp.MustCompile(`-+`)
)

// generateAnchor creates a URL-safe anchor from text
func generateAnchor(s string) string {
	anchor := strings.ToLower(s)
	anchor = strings.ReplaceAll(anchor, " ", "-")
	anchor = anchorStrip.ReplaceAllString(anchor, "")
	anchor = anchorHyphen.ReplaceAllString(anchor, "-")
	return strings.Trim(anchor, "-")
}

func extensionOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
