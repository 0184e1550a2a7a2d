// Package sources fetches raw content for ingestion units: page markdown
// from a reader service, site maps from a crawler API, and uploaded file text
// from blob storage. Failures are returned as plain errors; callers do not
// distinguish causes.
package sources

import (
	"context"
	"encoding/json"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// Page is the extracted content of one web page.
type Page struct {
	Title    string
	Markdown string
}

// PageFetcher returns the markdown of a web page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*Page, error)
}

// SiteInfo is the metadata of a crawled site.
type SiteInfo struct {
	Name        string
	Description string
	FavIcon     string
	URL         string
	Raw         json.RawMessage
}

// SiteMap is a crawled site: its metadata and every discovered link.
type SiteMap struct {
	Info  SiteInfo
	Links []domain.Link
}

// SiteMapper discovers the pages of a site.
type SiteMapper interface {
	MapSite(ctx context.Context, url string) (*SiteMap, error)
}

// FileFetcher returns the text of an uploaded file by storage key.
type FileFetcher interface {
	FetchFile(ctx context.Context, key string) (string, error)
}
