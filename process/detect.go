package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// headerSize is enough for filetype signatures and for a typical HTML
// preamble (BOM, XML declaration, DOCTYPE, comment).
const headerSize = 1024

var htmlType = filetype.NewType("html", "text/html")

var htmlExtensions = map[string]bool{
	".html":  true,
	".htm":   true,
	".xhtml": true,
	".shtml": true,
}

func init() {
	filetype.AddMatcher(htmlType, matchHTML)
}

func matchHTML(buf []byte) bool {
	buf = bytes.TrimPrefix(buf, []byte{0xEF, 0xBB, 0xBF})
	buf = bytes.ToLower(bytes.TrimLeft(buf, " \t\r\n\f"))
	if len(buf) == 0 || buf[0] != '<' {
		return false
	}
	for _, marker := range []string{"<!doctype html", "<html", "<head", "<body"} {
		if bytes.Contains(buf, []byte(marker)) {
			return true
		}
	}
	return false
}

func readHeader(r io.Reader) ([]byte, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func fileHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readHeader(f)
}

// isArchiveFile reports whether path is a zip archive.
func isArchiveFile(path string) (bool, error) {
	head, err := fileHeader(path)
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false, nil
	}
	return filetype.Is(head, "zip"), nil
}

// isPage reports whether content with given name and header is HTML. Known
// extensions are trusted unless content is recognized as something else.
func isPage(name string, head []byte) bool {
	kind, err := filetype.Match(head)
	if err != nil {
		return false
	}
	if kind == htmlType {
		return true
	}
	return kind == types.Unknown && htmlExtensions[strings.ToLower(filepath.Ext(name))] && len(head) > 0
}

// isPageFile reports whether file at path is HTML.
func isPageFile(path string) (bool, error) {
	head, err := fileHeader(path)
	if err != nil {
		return false, err
	}
	return isPage(path, head), nil
}
