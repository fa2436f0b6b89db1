package content

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

//go:embed pages/*.md
var embedded embed.FS

const maxDescription = 160

// Page is one informational page rendered from markdown.
type Page struct {
	Slug        string    `yaml:"slug"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Updated     time.Time `yaml:"updated"`
	Headings    []string  `yaml:"-"`
	Links       []string  `yaml:"-"` // absolute http(s) links, in document order
	HTMLContent string    `yaml:"-"`
}

var (
	pages []Page
	mu    sync.RWMutex
)

// LoadEmbedded loads the pages compiled into the binary.
func LoadEmbedded() error {
	sub, err := fs.Sub(embedded, "pages")
	if err != nil {
		return err
	}
	return load(sub)
}

// LoadDir loads pages from a directory on disk, replacing the current set.
func LoadDir(dir string) error {
	return load(os.DirFS(dir))
}

func load(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}

	md := goldmark.New()
	var loaded []Page

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return err
		}
		p, err := parsePage(data, md)
		if err != nil {
			return fmt.Errorf("content: %s: %w", e.Name(), err)
		}
		if p.Slug == "" {
			p.Slug = strings.TrimSuffix(e.Name(), ".md")
		}
		loaded = append(loaded, p)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Slug < loaded[j].Slug })

	mu.Lock()
	pages = loaded
	mu.Unlock()
	return nil
}

func parsePage(data []byte, md goldmark.Markdown) (Page, error) {
	content := strings.TrimPrefix(string(data), "\xef\xbb\xbf")

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return Page{}, fmt.Errorf("invalid frontmatter")
	}

	var p Page
	if err := yaml.Unmarshal([]byte(parts[1]), &p); err != nil {
		return Page{}, err
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(strings.TrimSpace(parts[2])), &buf); err != nil {
		return Page{}, err
	}
	p.HTMLContent = buf.String()

	doc, err := html.Parse(strings.NewReader(p.HTMLContent))
	if err != nil {
		return Page{}, err
	}
	p.Headings = headings(doc)
	p.Links = externalLinks(doc)
	if p.Description == "" {
		p.Description = truncate(firstParagraph(doc), maxDescription)
	}
	return p, nil
}

// Get returns a page by slug, or nil if not found.
func Get(slug string) *Page {
	mu.RLock()
	defer mu.RUnlock()
	for i := range pages {
		if pages[i].Slug == slug {
			p := pages[i]
			return &p
		}
	}
	return nil
}

// All returns every loaded page sorted by slug.
func All() []Page {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Page, len(pages))
	copy(out, pages)
	return out
}

func firstParagraph(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.P {
		return strings.Join(strings.Fields(textOf(n)), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := firstParagraph(c); s != "" {
			return s
		}
	}
	return ""
}

func headings(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.H2 {
			out = append(out, strings.TrimSpace(textOf(n)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func externalLinks(n *html.Node) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				if (strings.HasPrefix(a.Val, "https://") || strings.HasPrefix(a.Val, "http://")) && !seen[a.Val] {
					seen[a.Val] = true
					out = append(out, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}

// truncate cuts s at a word boundary so it fits in max runes, adding "…".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max-1])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
