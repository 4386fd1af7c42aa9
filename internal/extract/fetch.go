package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// CrawlServiceFetcher calls a browser-rendering crawl service over HTTP.
//
//	POST <base>/crawl  {"urls": ["https://..."]}
//	200 {"results": [{"url": "...", "success": true, "markdown": "..."}]}
//
// markdown may also be an object carrying raw_markdown.
type CrawlServiceFetcher struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewCrawlServiceFetcher(baseURL, apiToken string, client *http.Client) *CrawlServiceFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &CrawlServiceFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
		httpClient: client,
	}
}

type crawlResult struct {
	URL          string          `json:"url"`
	Success      *bool           `json:"success"`
	Markdown     json.RawMessage `json:"markdown"`
	ErrorMessage string          `json:"error_message"`
}

func (f *CrawlServiceFetcher) Fetch(ctx context.Context, url string) ([]string, error) {
	body, err := json.Marshal(map[string]interface{}{"urls": []string{url}})
	if err != nil {
		return nil, fmt.Errorf("marshal crawl request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build crawl request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiToken)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read crawl response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("crawl response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Results []crawlResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse crawl json failed: %w", err)
	}

	var segments []string
	for _, r := range parsed.Results {
		if r.Success != nil && !*r.Success {
			continue
		}
		if text := markdownText(r.Markdown); text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}

func markdownText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		RawMarkdown string `json:"raw_markdown"`
		FitMarkdown string `json:"fit_markdown"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.RawMarkdown != "" {
			return obj.RawMarkdown
		}
		return obj.FitMarkdown
	}
	return ""
}

// HTTPFetcher downloads a page with a plain GET and strips the markup.
type HTTPFetcher struct {
	userAgent  string
	httpClient *http.Client
	maxBytes   int64
}

func NewHTTPFetcher(userAgent string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{userAgent: userAgent, httpClient: client, maxBytes: 10 << 20}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request failed: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch response status %d", resp.StatusCode)
	}

	text, err := StripMarkup(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"nav":      true,
	"footer":   true,
	"svg":      true,
	"iframe":   true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
}

// StripMarkup returns the visible text of an HTML document, one block per line.
func StripMarkup(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html failed: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String()), nil
}
