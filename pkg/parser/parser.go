// Package parser extracts the text a passive scan submits: either all
// visible text of a page, or the main article found by go-readability.
package parser

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// invisible matches elements whose text never renders.
const invisible = "script,style,noscript,template,svg,iframe,object,head,[hidden],[aria-hidden=true],input,select,textarea"

type Parser struct{}

// Page is the text extracted from one document.
type Page struct {
	URL   string
	Title string
	Text  string
}

// VisibleText returns the normalized text a user would see on the page.
func (p *Parser) VisibleText(rawURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := normalizeText(doc.Find("title").First().Text())

	doc.Find(invisible).Remove()
	doc.Find("[style]").Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return &Page{
		URL:   rawURL,
		Title: title,
		Text:  blockText(root),
	}, nil
}

// ArticleText uses go-readability to find the main content and returns
// its text. Pages readability cannot handle fall back to VisibleText.
func (p *Parser) ArticleText(rawURL, html string) (*Page, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	readabilityParser := readability.NewParser()
	article, err := readabilityParser.Parse(strings.NewReader(html), parsedURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return p.VisibleText(rawURL, html)
	}

	// Now, use goquery on the clean content provided by readability
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article HTML: %w", err)
	}

	var parts []string
	doc.Find("h1,h2,h3,h4,p,li,blockquote,figcaption").Each(func(i int, s *goquery.Selection) {
		// Nested matches (p inside li) are covered by the outer element.
		if s.ParentsFiltered("li,blockquote").Length() > 0 {
			return
		}
		if text := normalizeText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	text := strings.Join(parts, " ")
	if text == "" {
		text = normalizeText(article.TextContent)
	}

	return &Page{
		URL:   rawURL,
		Title: normalizeText(article.Title),
		Text:  text,
	}, nil
}

// blockText joins the text of s, inserting a space at element boundaries
// so adjacent blocks do not run together.
func blockText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(i int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			b.WriteString(" ")
			walk(c)
			b.WriteString(" ")
		})
	}
	walk(s)
	return normalizeText(b.String())
}

// normalizeText collapses every whitespace run to one space and trims.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), len(input)+1)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(scanner.Text())
	}
	return b.String()
}
