package handlers

import (
	"encoding/xml"
	"html"
	"net/http"
	"strings"
	"time"

	"ahorrove/internal/config"
	"ahorrove/internal/content"
)

const beneficiosSlug = "beneficios-tributarios"

func formatFecha(t time.Time) string {
	meses := [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
	return t.Format("2") + " de " + meses[t.Month()-1] + " de " + t.Format("2006")
}

// BeneficiosHandler renders the Ley 1715 informational page from markdown.
func BeneficiosHandler(w http.ResponseWriter, r *http.Request) {
	page := content.Get(beneficiosSlug)
	if page == nil {
		NotFoundHandler(w, r)
		return
	}

	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html>
<html lang="es">
<head>
` + SharedMetaTags(page.Title+" | AhorroVE", page.Description, "/"+page.Slug) + `
<style>` + SharedCSS() + pageCSS + `</style>
</head>
<body>
`)
	sb.WriteString(SharedHeader("/" + page.Slug))
	sb.WriteString(`<main class="page-content" style="padding-top:32px;padding-bottom:48px">`)
	sb.WriteString(`<article class="content-article">`)
	sb.WriteString(`<h1>` + html.EscapeString(page.Title) + `</h1>`)
	if !page.Updated.IsZero() {
		sb.WriteString(`<p class="content-meta">Actualizado el <time datetime="` + page.Updated.Format("2006-01-02") + `">` + formatFecha(page.Updated) + `</time></p>`)
	}
	if len(page.Headings) > 2 {
		sb.WriteString(`<nav class="toc" aria-label="Contenido"><strong>En esta página</strong><ul>`)
		for _, h := range page.Headings {
			sb.WriteString(`<li>` + html.EscapeString(h) + `</li>`)
		}
		sb.WriteString(`</ul></nav>`)
	}
	sb.WriteString(`<div class="content-body">` + page.HTMLContent + `</div>`)
	sb.WriteString(`<p class="content-cta"><a href="/" class="btn-home">Calcula tu ahorro</a></p>`)
	sb.WriteString(`</article>`)

	sb.WriteString(`<script type="application/ld+json">{
"@context":"https://schema.org",
"@type":"Article",
"headline":"` + html.EscapeString(page.Title) + `",
"description":"` + html.EscapeString(page.Description) + `",
"dateModified":"` + page.Updated.Format("2006-01-02") + `",
"publisher":{"@type":"Organization","name":"AhorroVE","url":"` + config.Cfg.BaseURL + `"},
"mainEntityOfPage":"` + config.Cfg.BaseURL + `/` + page.Slug + `"
}</script>`)
	sb.WriteString(`</main>`)
	sb.WriteString(SharedFooter())
	sb.WriteString(SharedCookieBanner())
	sb.WriteString(SharedScripts())
	sb.WriteString(`</body></html>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(sb.String()))
}

const pageCSS = `
.content-article h1{font-size:clamp(1.5rem,4vw,2.1rem);color:var(--green);margin-bottom:6px}
.content-meta{color:var(--ink-50);font-size:.82rem;margin-bottom:20px}
.toc{background:var(--cream);border-radius:var(--radius);padding:14px 18px;margin-bottom:24px;font-size:.86rem}
.toc ul{margin:6px 0 0 18px}
.content-body h2{font-size:1.25rem;margin:28px 0 10px}
.content-body p,.content-body ul,.content-body ol{margin-bottom:14px}
.content-body ul,.content-body ol{padding-left:22px}
.content-body table{border-collapse:collapse;width:100%;margin-bottom:16px;font-size:.88rem}
.content-body th,.content-body td{border:1px solid var(--ink-15);padding:6px 8px}
.content-cta{margin-top:28px}
.btn-home{display:inline-block;padding:12px 28px;background:var(--green);color:#fff;border-radius:var(--radius);font-weight:600}
.btn-home:hover{background:var(--green-mid);text-decoration:none}
`

type siteURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type urlSet struct {
	XMLName xml.Name  `xml:"urlset"`
	XMLNS   string    `xml:"xmlns,attr"`
	URLs    []siteURL `xml:"url"`
}

func SitemapHandler(w http.ResponseWriter, r *http.Request) {
	baseURL := config.Cfg.BaseURL
	urls := []siteURL{
		{Loc: baseURL + "/", ChangeFreq: "monthly", Priority: "1.0"},
	}
	for _, p := range content.All() {
		u := siteURL{Loc: baseURL + "/" + p.Slug, ChangeFreq: "monthly", Priority: "0.7"}
		if !p.Updated.IsZero() {
			u.LastMod = p.Updated.Format("2006-01-02")
		}
		urls = append(urls, u)
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9", URLs: urls})
}

// RobotsTxtHandler serves robots.txt with sitemap link.
func RobotsTxtHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte("User-agent: *\nAllow: /\nAllow: /" + beneficiosSlug + "\nDisallow: /api/\nDisallow: /.env\nDisallow: /.git\n\nSitemap: " + config.Cfg.BaseURL + "/sitemap.xml\n"))
}
