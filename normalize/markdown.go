package normalize

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var blankLineRun = regexp.MustCompile(`\n{3,}`)
var trailingSpace = regexp.MustCompile(`[ \t]+\n`)

// ToPlainDescription converts an event card's description HTML to markdown,
// trims trailing spaces before line breaks and collapses runs of blank
// lines the conversion leaves behind. Markdown syntax (links, images,
// emphasis) is kept as is.
func ToPlainDescription(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	md, err := conv.ConvertString(html)
	if err != nil {
		return ""
	}
	return cleanMarkdown(md)
}

func cleanMarkdown(md string) string {
	md = trailingSpace.ReplaceAllString(md, "\n")
	md = blankLineRun.ReplaceAllString(md, "\n\n")
	md = strings.TrimSpace(md)
	return md
}
