package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yourorg/lifedb/internal/domain"
)

const maxListed = 20

var socialKeys = []string{
	domain.MetaOGTitle,
	domain.MetaOGDescription,
	domain.MetaOGImage,
	domain.MetaTwitterTitle,
	domain.MetaTwitterDescription,
	domain.MetaTwitterImage,
	domain.MetaPublishedTime,
}

// Parse reads an HTML document and collects the social meta tags, title,
// meta description, the first h1/h2 headings and image sources. The first
// occurrence of each meta key wins.
func Parse(r io.Reader) (domain.Metadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return domain.Metadata{}, err
	}

	md := domain.Metadata{
		Meta:     make(map[string]string, len(socialKeys)),
		Headings: domain.Headings{H1: []string{}, H2: []string{}},
		Images:   []string{},
	}
	for _, k := range socialKeys {
		md.Meta[k] = ""
	}
	seenMeta := make(map[string]bool)
	seenTitle, seenDesc := false, false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if !seenTitle {
					seenTitle = true
					md.Title = textOf(n)
				}
			case atom.Meta:
				key := strings.ToLower(strings.TrimSpace(attr(n, "property")))
				if key == "" {
					key = strings.ToLower(strings.TrimSpace(attr(n, "name")))
				}
				content := strings.TrimSpace(attr(n, "content"))
				if key == "description" && !seenDesc {
					seenDesc = true
					md.Description = content
				}
				if _, ok := md.Meta[key]; ok && !seenMeta[key] {
					seenMeta[key] = true
					md.Meta[key] = content
				}
			case atom.H1:
				if len(md.Headings.H1) < maxListed {
					md.Headings.H1 = append(md.Headings.H1, textOf(n))
				}
			case atom.H2:
				if len(md.Headings.H2) < maxListed {
					md.Headings.H2 = append(md.Headings.H2, textOf(n))
				}
			case atom.Img:
				if src := strings.TrimSpace(attr(n, "src")); src != "" && len(md.Images) < maxListed {
					md.Images = append(md.Images, src)
				}
			case atom.Script, atom.Style:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return md, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// textOf joins the node's text content with single spaces.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
