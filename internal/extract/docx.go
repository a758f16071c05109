package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	defaultDocxBodyPath = "word/document.xml"
	docxContentTypes    = "[Content_Types].xml"
	docxBodyContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// textNodeRe matches the inner text of <w:t> nodes, with or without attributes.
var textNodeRe = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// Override entries in [Content_Types].xml list attributes in either order.
var bodyPartRes = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX pulls the text of a .docx document. The format is a zip archive
// whose main part is WordprocessingML; matching every <w:t> node keeps the
// content regardless of paragraph or run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	bodyPath := docxBodyPath(zr)

	body, err := readZipEntry(zr, bodyPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	nodes := textNodeRe.FindAllSubmatch(body, -1)
	if len(nodes) == 0 {
		return "", nil
	}
	pieces := make([]string, 0, len(nodes))
	for _, n := range nodes {
		pieces = append(pieces, strings.TrimSpace(string(n[1])))
	}
	return strings.TrimSpace(strings.Join(pieces, " ")), nil
}

// docxBodyPath resolves the main document part from [Content_Types].xml,
// falling back to the conventional word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	types, err := readZipEntry(zr, docxContentTypes)
	if err != nil {
		return defaultDocxBodyPath
	}
	for _, re := range bodyPartRes {
		if m := re.FindSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return defaultDocxBodyPath
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
