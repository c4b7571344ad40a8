package inference

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/re-search/internal/normalize"
)

const strippedElements = "script, style, nav, header, footer, aside, noscript, iframe, svg"

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// CleanPage strips page chrome and converts the remaining markup to markdown,
// capped at maxChars runes. Links survive as markdown so the model can see
// application URLs.
func CleanPage(rawHTML string, maxChars int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strippedElements).Remove()

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body, err = doc.Html()
		if err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}

	text, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		// Plain text still carries the content.
		text = normalize.CleanText(doc.Text())
	}

	text = blankLinesRe.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	if maxChars > 0 && len([]rune(text)) > maxChars {
		text = normalize.Truncate(text, maxChars) + "..."
	}
	return text, nil
}
