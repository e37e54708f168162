package document

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// htmlText returns the text nodes of an HTML document separated by spaces.
// Script and style contents are skipped.
func htmlText(data []byte) (string, error) {
	node, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var b strings.Builder
	writeNodeText(node, &b)
	return b.String(), nil
}

func writeNodeText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(c, b)
	}
}
