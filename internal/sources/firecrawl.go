package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// Firecrawl maps sites through the Firecrawl v2 API: /map for links and
// /scrape for site metadata.
type Firecrawl struct {
	BaseURL string
	Token   string
	Limit   int
	Client  *http.Client
}

// NewFirecrawl builds a mapper from cfg.
func NewFirecrawl(cfg config.ScrapeConfig) *Firecrawl {
	return &Firecrawl{
		BaseURL: strings.TrimRight(cfg.FirecrawlBaseURL, "/"),
		Token:   cfg.FirecrawlToken,
		Limit:   cfg.MapLimit,
		Client:  newHTTPClient(cfg.Timeout),
	}
}

type firecrawlMapResponse struct {
	Success bool          `json:"success"`
	Links   []domain.Link `json:"links"`
}

type firecrawlMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Favicon     string `json:"favicon"`
	SourceURL   string `json:"sourceURL"`
	URL         string `json:"url"`
}

type firecrawlScrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Metadata json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// MapSite implements SiteMapper. Links without a URL are dropped and
// duplicates keep their first occurrence.
func (f *Firecrawl) MapSite(ctx context.Context, url string) (*SiteMap, error) {
	var m firecrawlMapResponse
	err := doJSON(ctx, f.Client, f.BaseURL+"/v2/map", f.Token, map[string]any{
		"url":               url,
		"limit":             f.Limit,
		"includeSubdomains": false,
		"sitemap":           "include",
	}, &m)
	if err != nil {
		return nil, err
	}
	if !m.Success {
		return nil, errors.New("site map request was not successful")
	}

	var s firecrawlScrapeResponse
	err = doJSON(ctx, f.Client, f.BaseURL+"/v2/scrape", f.Token, map[string]any{
		"url":             url,
		"onlyMainContent": false,
		"maxAge":          172800000,
		"parsers":         []string{},
		"formats":         []string{},
	}, &s)
	if err != nil {
		return nil, err
	}
	var md firecrawlMetadata
	if len(s.Data.Metadata) > 0 {
		if err := json.Unmarshal(s.Data.Metadata, &md); err != nil {
			return nil, err
		}
	}

	info := SiteInfo{
		Name:        strings.TrimSpace(md.Title),
		Description: md.Description,
		FavIcon:     md.Favicon,
		URL:         firstNonEmpty(md.SourceURL, md.URL, url),
		Raw:         s.Data.Metadata,
	}
	if info.Name == "" {
		info.Name = info.URL
	}
	return &SiteMap{Info: info, Links: cleanLinks(m.Links)}, nil
}

func cleanLinks(in []domain.Link) []domain.Link {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Link, 0, len(in))
	for _, l := range in {
		l.URL = strings.TrimSpace(l.URL)
		if l.URL == "" {
			continue
		}
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
