package rag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxDocumentBytes bounds uploads and fetched pages.
const maxDocumentBytes = 10 << 20

// Document is raw uploaded content.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

func (d Document) isHTML() bool {
	if strings.Contains(strings.ToLower(d.ContentType), "html") {
		return true
	}
	switch strings.ToLower(path.Ext(d.Name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// extractText returns the plain text of doc. HTML is reduced to its main
// article with readability and stripped of any remaining markup.
func extractText(doc Document) (string, error) {
	if !doc.isHTML() {
		return string(doc.Body), nil
	}

	pageURL, err := url.Parse(doc.Name)
	if err != nil || pageURL.Scheme == "" {
		pageURL = &url.URL{Scheme: "file", Path: "/" + path.Base(doc.Name)}
	}
	article, err := readability.FromReader(bytes.NewReader(doc.Body), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	p := bluemonday.StrictPolicy()
	text := p.Sanitize(article.TextContent)
	if article.Title != "" && !strings.HasPrefix(strings.TrimSpace(text), article.Title) {
		text = article.Title + "\n\n" + text
	}
	return text, nil
}

// fetch downloads rawURL as a Document.
func fetch(ctx context.Context, client *http.Client, rawURL string) (Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read page: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}
	return Document{Name: u.String(), ContentType: contentType, Body: body}, nil
}
