// Package linkmeta resolves a URL to its page title and description for
// classification signal. Only the head of the document matters; bodies
// are read with a hard cap.
package linkmeta

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxBodyBytes = 512 * 1024

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "sekretar-linkmeta/1.0",
	}
}

func (f *Fetcher) FetchMetadata(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("create metadata request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("fetch %s status: %s", url, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		// Non-HTML targets still classify fine from the URL itself.
		return url, "", nil
	}

	title, description, err := parseMetadata(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", url, err)
	}
	if title == "" {
		title = url
	}
	return title, description, nil
}

// parseMetadata walks the document tree for <title> and description meta
// tags. OpenGraph values win over the plain ones when both exist.
func parseMetadata(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var title, ogTitle, description, ogDescription string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name, property, content := metaAttrs(n)
				switch {
				case property == "og:title":
					ogTitle = content
				case property == "og:description":
					ogDescription = content
				case name == "description":
					description = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if ogTitle != "" {
		title = ogTitle
	}
	if ogDescription != "" {
		description = ogDescription
	}
	return title, description, nil
}

func metaAttrs(n *html.Node) (name, property, content string) {
	for _, attr := range n.Attr {
		value := strings.TrimSpace(attr.Val)
		switch strings.ToLower(attr.Key) {
		case "name":
			name = strings.ToLower(value)
		case "property":
			property = strings.ToLower(value)
		case "content":
			content = value
		}
	}
	return name, property, content
}
