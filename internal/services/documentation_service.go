// Package services – DocumentationService
//
// This file implements documentation management: creating files and web
// documentations, registering uploads, scheduling unit ingestion (single,
// rescans and the staggered "scan all remaining pages" batch) and deleting
// units or whole documentations while keeping the parent counters
// consistent.
//
// Metering: creating a documentation requires the documentation_limit
// feature; every scheduled unit costs one scan credit, checked before any job
// is enqueued and tracked once per request.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/blob"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/sources"
	"github.com/tbourn/go-docchat-backend/internal/utils"
	"github.com/tbourn/go-docchat-backend/internal/vectorindex"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FileInput describes one uploaded file being registered.
type FileInput struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Size   int64  `json:"size"`
}

// DocumentationService owns documentation and unit lifecycle operations.
type DocumentationService struct {
	DB     *gorm.DB
	Queue  queue.Queue
	Meter  metering.Meter
	Mapper sources.SiteMapper
	Blobs  blob.Store
	Index  vectorindex.Index

	// FilePatterns are doublestar globs a file name must match.
	FilePatterns []string
	// ScanStagger delays the i-th job of a batch scan by i*ScanStagger.
	ScanStagger time.Duration
	// MaxUploadBytes caps a single upload.
	MaxUploadBytes int64
}

func (s *DocumentationService) tracer() trace.Tracer {
	return otel.Tracer("services/DocumentationService")
}

// AllowedFile reports whether name passes the file-name policy. Matching is
// case-insensitive on the base name.
func (s *DocumentationService) AllowedFile(name string) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		return false
	}
	if len(s.FilePatterns) == 0 {
		return true
	}
	for _, p := range s.FilePatterns {
		if ok, err := doublestar.Match(strings.ToLower(p), base); err == nil && ok {
			return true
		}
	}
	return false
}

// Upload stores r in blob storage under "<userID>/<uuid>-<name>" and returns
// the registration input for it.
func (s *DocumentationService) Upload(ctx context.Context, userID, name string, r io.Reader) (*FileInput, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if !s.AllowedFile(name) {
		return nil, ErrInvalidFileName
	}
	key := userID + "/" + uuid.NewString() + "-" + name
	n, err := s.Blobs.Put(ctx, key, r, s.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return &FileInput{Name: name, Prefix: key, Size: n}, nil
}

// CreateFilesDocumentation creates a files documentation with one starting
// unit per file and schedules their ingestion.
func (s *DocumentationService) CreateFilesDocumentation(ctx context.Context, userID, name string, files []FileInput) (*domain.Documentation, error) {
	ctx, span := s.tracer().Start(ctx, "CreateFilesDocumentation",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int("files", len(files))),
	)
	defer span.End()

	if err := s.validateFiles(userID, files); err != nil {
		return nil, err
	}
	if err := s.requireFeature(ctx, userID, metering.FeatureDocumentationLimit); err != nil {
		return nil, err
	}
	if err := s.requireScans(ctx, userID, len(files)); err != nil {
		return nil, err
	}

	name = normalizeTitle(name)
	if name == "" {
		name = files[0].Name
	}
	doc := &domain.Documentation{
		UserID:    userID,
		Name:      clipRunes(name, 255),
		Type:      domain.DocTypeFiles,
		TotalPage: len(files),
		Status:    domain.DocumentationReady,
	}
	units := fileUnits(files)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDocumentation(ctx, tx, doc); err != nil {
			return err
		}
		for i := range units {
			units[i].DocumentationID = doc.ID
		}
		return repo.CreateFileDocuments(ctx, tx, units)
	})
	if err != nil {
		return nil, err
	}

	s.scheduleFiles(ctx, units)
	s.track(ctx, userID, metering.FeatureScans, int64(len(units)))
	return doc, nil
}

// AddFiles registers more files on an existing files documentation and
// returns how many were added.
func (s *DocumentationService) AddFiles(ctx context.Context, userID, docID string, files []FileInput) (int, error) {
	ctx, span := s.tracer().Start(ctx, "AddFiles",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.Int("files", len(files))),
	)
	defer span.End()

	doc, err := s.owned(ctx, userID, docID)
	if err != nil {
		return 0, err
	}
	if doc.Type != domain.DocTypeFiles {
		return 0, ErrWrongType
	}
	if err := s.validateFiles(userID, files); err != nil {
		return 0, err
	}
	if err := s.requireScans(ctx, userID, len(files)); err != nil {
		return 0, err
	}

	units := fileUnits(files)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range units {
			units[i].DocumentationID = doc.ID
		}
		if err := repo.CreateFileDocuments(ctx, tx, units); err != nil {
			return err
		}
		return repo.AddTotalPages(ctx, tx, doc.ID, len(units))
	})
	if err != nil {
		return 0, err
	}

	s.scheduleFiles(ctx, units)
	s.track(ctx, userID, metering.FeatureScans, int64(len(units)))
	return len(units), nil
}

// RescanFile resets a file to starting and schedules it. Resetting a
// completed file takes it out of the documentation's active count until it
// completes again.
func (s *DocumentationService) RescanFile(ctx context.Context, userID, docID, fileID string) error {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return err
	}
	f, err := repo.GetFileDocument(ctx, s.DB, docID, fileID)
	if err != nil {
		return notFound(err, ErrUnitNotFound)
	}
	if err := s.requireScans(ctx, userID, 1); err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateUnitStatus(ctx, tx, domain.UnitFile, f.ID, repo.UnitUpdate{Status: domain.UnitStarting}); err != nil {
			return err
		}
		if f.Status == domain.UnitCompleted {
			return repo.DecrementActivePage(ctx, tx, docID)
		}
		return nil
	})
	if err != nil {
		return notFound(err, ErrUnitNotFound)
	}
	s.scheduleFiles(ctx, []domain.FileDocument{*f})
	s.track(ctx, userID, metering.FeatureScans, 1)
	return nil
}

// DeleteFile removes a file unit, its chunks and its blob, and releases it
// from the parent counters.
func (s *DocumentationService) DeleteFile(ctx context.Context, userID, docID, fileID string) error {
	ctx, span := s.tracer().Start(ctx, "DeleteFile",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.String("unit.id", fileID)),
	)
	defer span.End()

	if _, err := s.owned(ctx, userID, docID); err != nil {
		return err
	}
	f, err := repo.GetFileDocument(ctx, s.DB, docID, fileID)
	if err != nil {
		return notFound(err, ErrUnitNotFound)
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteUnitChunks(ctx, tx, domain.UnitFile, f.ID); err != nil {
			return err
		}
		if err := repo.DeleteFileDocument(ctx, tx, f.ID); err != nil {
			return err
		}
		return repo.ReleaseUnit(ctx, tx, docID, f.Status == domain.UnitCompleted)
	})
	if err != nil {
		return notFound(err, ErrUnitNotFound)
	}
	if err := s.Index.DeleteUnit(ctx, domain.UnitFile, f.ID); err != nil {
		log.Warn().Err(err).Str("unit_id", f.ID).Msg("remove file from vector index")
	}
	if err := s.Blobs.Delete(ctx, f.FilePrefix); err != nil {
		log.Warn().Err(err).Str("key", f.FilePrefix).Msg("delete file blob")
	}
	return nil
}

// CreateWebDocumentation maps the site at rawURL and stores it as a draft
// web documentation with its metadata and link list.
func (s *DocumentationService) CreateWebDocumentation(ctx context.Context, userID, rawURL string) (*domain.Documentation, error) {
	ctx, span := s.tracer().Start(ctx, "CreateWebDocumentation",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("url", rawURL)),
	)
	defer span.End()

	site, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := s.requireFeature(ctx, userID, metering.FeatureDocumentationLimit); err != nil {
		return nil, err
	}
	m, err := s.Mapper.MapSite(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("map site: %w", err)
	}

	doc := &domain.Documentation{
		UserID:    userID,
		Name:      clipRunes(firstNonEmpty(m.Info.Name, site), 255),
		Type:      domain.DocTypeWeb,
		Link:      firstNonEmpty(m.Info.URL, site),
		TotalPage: len(m.Links),
		Draft:     true,
		Status:    domain.DocumentationReady,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDocumentation(ctx, tx, doc); err != nil {
			return err
		}
		if err := repo.SaveWebInfo(ctx, tx, &domain.WebInfo{
			DocumentationID: doc.ID,
			Name:            m.Info.Name,
			Description:     m.Info.Description,
			FavIcon:         m.Info.FavIcon,
			URL:             m.Info.URL,
			RawData:         string(m.Info.Raw),
		}); err != nil {
			return err
		}
		return repo.SaveWebLinks(ctx, tx, &domain.WebLinks{
			DocumentationID: doc.ID,
			BaseURL:         site,
			Links:           domain.LinkList(m.Links),
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("documentation_id", doc.ID).Int("links", len(m.Links)).Msg("web documentation created")
	return doc, nil
}

// StartPageScrape creates or resets the page for rawURL and schedules it
// immediately. URLs missing from the link list are appended to it. A
// completed page leaves the active count until it completes again.
func (s *DocumentationService) StartPageScrape(ctx context.Context, userID, docID, rawURL, title string) (*domain.PageDocument, error) {
	ctx, span := s.tracer().Start(ctx, "StartPageScrape",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.String("url", rawURL)),
	)
	defer span.End()

	doc, err := s.owned(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Type != domain.DocTypeWeb {
		return nil, ErrWrongType
	}
	pageURL, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	links, err := repo.GetWebLinks(ctx, s.DB, docID)
	if err != nil {
		return nil, notFound(err, ErrWebLinksNotFound)
	}
	wasCompleted := false
	if existing, err := repo.GetPageByURL(ctx, s.DB, docID, pageURL); err == nil {
		wasCompleted = existing.Status == domain.UnitCompleted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := s.requireScans(ctx, userID, 1); err != nil {
		return nil, err
	}

	known := false
	for _, l := range links.Links {
		if l.URL == pageURL {
			known = true
			title = firstNonEmpty(title, l.Title)
			break
		}
	}

	var page *domain.PageDocument
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !known {
			updated := append(links.Links, domain.Link{URL: pageURL, Title: title})
			if err := repo.UpdateWebLinks(ctx, tx, docID, updated); err != nil {
				return err
			}
			if err := repo.AddTotalPages(ctx, tx, docID, 1); err != nil {
				return err
			}
		}
		p, err := repo.UpsertPageDocument(ctx, tx, docID, pageURL, title)
		if err != nil {
			return err
		}
		page = p
		if wasCompleted {
			return repo.DecrementActivePage(ctx, tx, docID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindIngestPage, Target: page.ID}, 0); err != nil {
		log.Warn().Err(err).Str("unit_id", page.ID).Msg("enqueue page ingestion")
	}
	s.track(ctx, userID, metering.FeatureScans, 1)
	return page, nil
}

// ScanAllPages schedules every link that has no page yet or whose page
// failed. Jobs start ScanStagger apart. The batch is rejected, and nothing is
// scheduled, when it needs more scan credits than remain. It returns the
// number of pages scheduled.
func (s *DocumentationService) ScanAllPages(ctx context.Context, userID, docID string) (int, error) {
	ctx, span := s.tracer().Start(ctx, "ScanAllPages",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.String("user.id", userID)),
	)
	defer span.End()

	doc, err := s.owned(ctx, userID, docID)
	if err != nil {
		return 0, err
	}
	if doc.Type != domain.DocTypeWeb {
		return 0, ErrWrongType
	}
	bal, err := s.Meter.Check(ctx, userID, metering.FeatureScans)
	if err != nil {
		return 0, err
	}
	if !bal.Allowed {
		return 0, ErrInsufficientCredits
	}

	links, err := repo.GetWebLinks(ctx, s.DB, docID)
	if err != nil {
		return 0, notFound(err, ErrWebLinksNotFound)
	}
	pages, err := repo.ListPageDocuments(ctx, s.DB, docID)
	if err != nil {
		return 0, err
	}
	pending := UnscannedLinks(links.Links, pages)
	span.SetAttributes(attribute.Int("pages", len(pending)))
	if !bal.Unlimited && int64(len(pending)) > bal.Remaining {
		return 0, ErrInsufficientCredits
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := repo.SetDocumentationStatus(ctx, s.DB, docID, domain.DocumentationScanAll); err != nil {
		return 0, err
	}
	scheduled := 0
	var upsertErr error
	for i, l := range pending {
		p, err := repo.UpsertPageDocument(ctx, s.DB, docID, l.URL, l.Title)
		if err != nil {
			upsertErr = err
			break
		}
		delay := time.Duration(i) * s.ScanStagger
		if err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindIngestPage, Target: p.ID}, delay); err != nil {
			log.Warn().Err(err).Str("unit_id", p.ID).Msg("enqueue page ingestion")
		}
		scheduled++
	}
	// Scheduled pages are charged even when the batch stops early.
	if scheduled > 0 {
		s.track(ctx, userID, metering.FeatureScans, int64(scheduled))
	}
	if upsertErr != nil {
		log.Error().Err(upsertErr).Str("documentation_id", docID).Int("pages", scheduled).Msg("scan all pages stopped early")
		return scheduled, upsertErr
	}
	log.Info().Str("documentation_id", docID).Int("pages", scheduled).Msg("scan all pages scheduled")
	return scheduled, nil
}

// UnscannedLinks returns the links, in sitemap order, that have no page or
// only a failed one.
func UnscannedLinks(links domain.LinkList, pages []domain.PageDocument) []domain.Link {
	status := make(map[string]domain.UnitStatus, len(pages))
	for _, p := range pages {
		status[p.URL] = p.Status
	}
	seen := make(map[string]struct{}, len(links))
	var out []domain.Link
	for _, l := range links {
		if _, dup := seen[l.URL]; dup || l.URL == "" {
			continue
		}
		seen[l.URL] = struct{}{}
		st, ok := status[l.URL]
		if !ok || st == domain.UnitFailed {
			out = append(out, l)
		}
	}
	return out
}

// DeleteLinkPage removes a link from a web documentation together with its
// page and chunks.
func (s *DocumentationService) DeleteLinkPage(ctx context.Context, userID, docID, rawURL string) error {
	ctx, span := s.tracer().Start(ctx, "DeleteLinkPage",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.String("url", rawURL)),
	)
	defer span.End()

	doc, err := s.owned(ctx, userID, docID)
	if err != nil {
		return err
	}
	if doc.Type != domain.DocTypeWeb {
		return ErrWrongType
	}
	pageURL, err := normalizeURL(rawURL)
	if err != nil {
		return err
	}
	links, err := repo.GetWebLinks(ctx, s.DB, docID)
	if err != nil {
		return notFound(err, ErrWebLinksNotFound)
	}
	inList := false
	for _, l := range links.Links {
		if l.URL == pageURL {
			inList = true
			break
		}
	}
	page, err := repo.GetPageByURL(ctx, s.DB, docID, pageURL)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if !inList && page == nil {
		return ErrUnitNotFound
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wasCompleted := false
		if page != nil {
			wasCompleted = page.Status == domain.UnitCompleted
			if err := repo.DeleteUnitChunks(ctx, tx, domain.UnitPage, page.ID); err != nil {
				return err
			}
			if err := repo.DeletePageDocument(ctx, tx, page.ID); err != nil {
				return err
			}
		}
		if inList {
			if err := repo.UpdateWebLinks(ctx, tx, docID, links.Links.Without(pageURL)); err != nil {
				return err
			}
		}
		return repo.ReleaseUnit(ctx, tx, docID, wasCompleted)
	})
	if err != nil {
		return err
	}
	if page != nil {
		if err := s.Index.DeleteUnit(ctx, domain.UnitPage, page.ID); err != nil {
			log.Warn().Err(err).Str("unit_id", page.ID).Msg("remove page from vector index")
		}
	}
	return nil
}

// Get returns an owned documentation.
func (s *DocumentationService) Get(ctx context.Context, userID, docID string) (*domain.Documentation, error) {
	return s.owned(ctx, userID, docID)
}

// ListPage returns a page of the user's documentations and the total count.
func (s *DocumentationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Documentation, int64, error) {
	ctx, span := s.tracer().Start(ctx, "ListPage",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int("page", page), attribute.Int("page_size", pageSize)),
	)
	defer span.End()

	p := utils.NewPage(page, pageSize)
	total, err := repo.CountDocumentations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Documentation{}, 0, nil
	}
	items, err := repo.ListDocumentationsPage(ctx, s.DB, userID, p.Offset(), p.Size)
	return items, total, err
}

// Options lists id, name and type of every owned documentation.
func (s *DocumentationService) Options(ctx context.Context, userID string) ([]repo.DocumentationOption, error) {
	return repo.ListDocumentationOptions(ctx, s.DB, userID)
}

// Rename changes the display name of an owned documentation.
func (s *DocumentationService) Rename(ctx context.Context, userID, docID, name string) error {
	name = normalizeTitle(name)
	if name == "" {
		name = "Untitled"
	}
	err := repo.RenameDocumentation(ctx, s.DB, docID, userID, clipRunes(name, 255))
	return notFound(err, ErrDocumentationNotFound)
}

// ListFiles returns the file units of an owned documentation.
func (s *DocumentationService) ListFiles(ctx context.Context, userID, docID string) ([]domain.FileDocument, error) {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	return repo.ListFileDocuments(ctx, s.DB, docID)
}

// ListPages returns the page units of an owned documentation without their
// markdown.
func (s *DocumentationService) ListPages(ctx context.Context, userID, docID string) ([]domain.PageDocument, error) {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, err
	}
	return repo.ListPageDocuments(ctx, s.DB, docID)
}

// WebInfo returns the crawled metadata and link list of a web documentation.
func (s *DocumentationService) WebInfo(ctx context.Context, userID, docID string) (*domain.WebInfo, *domain.WebLinks, error) {
	if _, err := s.owned(ctx, userID, docID); err != nil {
		return nil, nil, err
	}
	info, err := repo.GetWebInfo(ctx, s.DB, docID)
	if err != nil {
		return nil, nil, notFound(err, ErrWebLinksNotFound)
	}
	links, err := repo.GetWebLinks(ctx, s.DB, docID)
	if err != nil {
		return nil, nil, notFound(err, ErrWebLinksNotFound)
	}
	return info, links, nil
}

// DeleteDocumentation removes an owned documentation with all its units,
// chunks, web rows and blobs, and drops it from thread selections.
func (s *DocumentationService) DeleteDocumentation(ctx context.Context, userID, docID string) error {
	ctx, span := s.tracer().Start(ctx, "DeleteDocumentation",
		trace.WithAttributes(attribute.String("documentation.id", docID), attribute.String("user.id", userID)),
	)
	defer span.End()

	doc, err := s.owned(ctx, userID, docID)
	if err != nil {
		return err
	}
	var keys []string
	if doc.Type == domain.DocTypeFiles {
		files, err := repo.ListFileDocuments(ctx, s.DB, docID)
		if err != nil {
			return err
		}
		for _, f := range files {
			keys = append(keys, f.FilePrefix)
		}
	}

	if err := repo.DeleteDocumentation(ctx, s.DB, docID, userID); err != nil {
		return notFound(err, ErrDocumentationNotFound)
	}
	if err := repo.RemoveDocumentationFromSelections(ctx, s.DB, userID, docID); err != nil {
		log.Warn().Err(err).Str("documentation_id", docID).Msg("remove documentation from thread selections")
	}
	if err := s.Index.DeleteDocumentation(ctx, docID); err != nil {
		log.Warn().Err(err).Str("documentation_id", docID).Msg("remove documentation from vector index")
	}
	for _, k := range keys {
		if err := s.Blobs.Delete(ctx, k); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("delete file blob")
		}
	}
	return nil
}

// owned loads a documentation scoped to its owner.
func (s *DocumentationService) owned(ctx context.Context, userID, docID string) (*domain.Documentation, error) {
	d, err := repo.GetDocumentation(ctx, s.DB, docID, userID)
	if err != nil {
		return nil, notFound(err, ErrDocumentationNotFound)
	}
	return d, nil
}

func (s *DocumentationService) validateFiles(userID string, files []FileInput) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	for _, f := range files {
		if !s.AllowedFile(f.Name) {
			return fmt.Errorf("%w: %s", ErrInvalidFileName, f.Name)
		}
		// Registered blobs must live under the caller's prefix.
		if !strings.HasPrefix(f.Prefix, userID+"/") {
			return fmt.Errorf("%w: %s", ErrInvalidFileName, f.Name)
		}
	}
	return nil
}

func (s *DocumentationService) requireFeature(ctx context.Context, userID string, f metering.Feature) error {
	bal, err := s.Meter.Check(ctx, userID, f)
	if err != nil {
		return err
	}
	if !bal.Allowed {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *DocumentationService) requireScans(ctx context.Context, userID string, n int) error {
	bal, err := s.Meter.Check(ctx, userID, metering.FeatureScans)
	if err != nil {
		return err
	}
	if !bal.Allowed || (!bal.Unlimited && int64(n) > bal.Remaining) {
		return ErrInsufficientCredits
	}
	return nil
}

// track records usage after the work is scheduled. A metering failure is
// logged and does not undo the request.
func (s *DocumentationService) track(ctx context.Context, userID string, f metering.Feature, n int64) {
	if err := s.Meter.Track(ctx, userID, f, n); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("feature", string(f)).Msg("track usage")
	}
}

func (s *DocumentationService) scheduleFiles(ctx context.Context, units []domain.FileDocument) {
	for _, u := range units {
		if err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindIngestFile, Target: u.ID}, 0); err != nil {
			log.Warn().Err(err).Str("unit_id", u.ID).Msg("enqueue file ingestion")
		}
	}
}

func fileUnits(files []FileInput) []domain.FileDocument {
	out := make([]domain.FileDocument, len(files))
	for i, f := range files {
		out[i] = domain.FileDocument{FileName: path.Base(f.Name), FilePrefix: f.Prefix, FileSize: f.Size}
	}
	return out
}

// normalizeURL accepts absolute http(s) URLs only and drops the fragment.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Fragment = ""
	return u.String(), nil
}

// notFound maps gorm.ErrRecordNotFound to target and passes other errors
// through.
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
