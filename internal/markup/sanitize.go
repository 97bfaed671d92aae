package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// blockElements end a line when they close.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// skipElements have their text content dropped entirely.
var skipElements = map[string]bool{
	"script": true, "style": true,
}

// PlainText reduces an HTML (or plain) description to text. <br> and closing
// block elements become newlines, every other tag is removed and entities are
// decoded. Windows line endings are normalised to \n.
func PlainText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader can produce.
			return normalizeNewlines(b.String())
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "br":
				b.WriteByte('\n')
			case skipElements[tag] && tt == html.StartTagToken:
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipElements[tag] && skipDepth > 0:
				skipDepth--
			case blockElements[tag]:
				b.WriteByte('\n')
			}
		}
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
