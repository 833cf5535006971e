package content

import (
	"bytes"
	"strings"
	"time"
)

// contentMarker separates the metadata block from the body.
const contentMarker = "\n### Content\n\n"

// lineBreaks folds header values onto a single line so the marker can only
// appear after the metadata block.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func headerValue(s string) string {
	return lineBreaks.Replace(s)
}

func headerList(names []string) string {
	for i, n := range names {
		names[i] = headerValue(n)
	}
	return strings.Join(names, ", ")
}

// Render serializes p into a text document. With includeMetadata the body is
// preceded by a front-matter block of single lines (line breaks in header
// values become spaces); without it the document is the body alone. The
// body is copied byte for byte.
func Render(p *Post, includeMetadata bool) []byte {
	if !includeMetadata {
		return []byte(p.Body)
	}

	var b bytes.Buffer
	b.WriteString("# " + headerValue(p.Title) + "\n\n")
	b.WriteString("* Categories: " + headerList(p.TermNames(TaxonomyCategory)) + "\n")
	b.WriteString("* Tags: " + headerList(p.TermNames(TaxonomyTag)) + "\n")
	b.WriteString("* Creation Date: " + p.CreatedAt.Format(time.RFC3339) + "\n")
	b.WriteString("* Modification Date: " + p.ModifiedAt.Format(time.RFC3339) + "\n")
	b.WriteString("* Link: <" + headerValue(p.Permalink) + ">\n")
	b.WriteString(contentMarker)
	b.WriteString(p.Body)
	return b.Bytes()
}

// ExtractBody returns the content section of a document produced by Render
// with metadata. ok is false if the document has no content marker.
func ExtractBody(doc []byte) (body []byte, ok bool) {
	i := bytes.Index(doc, []byte(contentMarker))
	if i < 0 {
		return nil, false
	}
	return doc[i+len(contentMarker):], true
}
