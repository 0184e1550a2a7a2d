// Package services – ThreadService
//
// This file implements the ThreadService, which manages the lifecycle of chat
// threads. It enforces ownership rules, validates the documentation selection
// used as retrieval context, meters thread creation against the daily chat
// quota, and coordinates repository operations for creating, listing (with
// pagination), renaming and deleting threads.
//
// Titles: a thread starts as "New Chat". After its first user message a
// thread.title job asks the Titler for a short title; when the provider fails
// or returns nothing, a heuristic title is derived from the prompt.
package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultThreadName is the placeholder name eligible for auto-titling.
const DefaultThreadName = "New Chat"

// QuotaMessageChats is the user-facing text for an exhausted chat quota.
const QuotaMessageChats = "You've reached your daily chat limit."

// ThreadService provides thread-level operations.
type ThreadService struct {
	DB     *gorm.DB
	Meter  metering.Meter
	Titler ai.Titler

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale drives casing of heuristic titles.
	TitleLocale language.Tag
}

// NewThreadService constructs a ThreadService with sane defaults for title handling.
func NewThreadService(db *gorm.DB, m metering.Meter, t ai.Titler) *ThreadService {
	return &ThreadService{
		DB:          db,
		Meter:       m,
		Titler:      t,
		TitleMaxLen: 50,
		TitleLocale: language.Und,
	}
}

// Create inserts a new thread owned by userID with the given selection.
func (s *ThreadService) Create(ctx context.Context, userID string, selected []string) (*domain.Thread, error) {
	tr := otel.Tracer("services/ThreadService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int("selected", len(selected))),
	)
	defer span.End()

	selected, err := validateSelection(ctx, s.DB, userID, selected)
	if err != nil {
		return nil, err
	}
	bal, err := s.Meter.Check(ctx, userID, metering.FeatureChats)
	if err != nil {
		return nil, err
	}
	if !bal.Allowed {
		return nil, ErrQuotaExceeded
	}
	th, err := repo.CreateThread(ctx, s.DB, userID, DefaultThreadName, selected)
	if err != nil {
		return nil, err
	}
	if err := s.Meter.Track(ctx, userID, metering.FeatureChats, 1); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("track chat usage")
	}
	return th, nil
}

// Get returns an owned thread.
func (s *ThreadService) Get(ctx context.Context, userID, threadID string) (*domain.Thread, error) {
	th, err := repo.GetThread(ctx, s.DB, threadID, userID)
	if err != nil {
		return nil, notFound(err, ErrThreadNotFound)
	}
	return th, nil
}

// ListPage returns a page of threads for a user (paginated).
// Out-of-range page values are bounded by utils.NewPage.
func (s *ThreadService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Thread, int64, error) {
	p := utils.NewPage(page, pageSize)
	total, err := repo.CountThreads(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Thread{}, 0, nil
	}

	items, err := repo.ListThreadsPage(ctx, s.DB, userID, p.Offset(), p.Size)
	return items, total, err
}

// Rename updates a thread's name, ensuring the thread exists and belongs to
// the given user. Falls back to "Untitled" if the name is blank.
func (s *ThreadService) Rename(ctx context.Context, userID, threadID, name string) error {
	name = normalizeTitle(name)
	if name == "" {
		name = "Untitled"
	}
	err := repo.RenameThread(ctx, s.DB, threadID, userID, s.clip(name))
	return notFound(err, ErrThreadNotFound)
}

// UpdateSelection replaces the documentations selected as context.
func (s *ThreadService) UpdateSelection(ctx context.Context, userID, threadID string, selected []string) error {
	selected, err := validateSelection(ctx, s.DB, userID, selected)
	if err != nil {
		return err
	}
	err = repo.UpdateThreadSelection(ctx, s.DB, threadID, userID, selected)
	return notFound(err, ErrThreadNotFound)
}

// Delete removes an owned thread with its messages and stream fragments.
func (s *ThreadService) Delete(ctx context.Context, userID, threadID string) error {
	err := repo.DeleteThread(ctx, s.DB, threadID, userID)
	return notFound(err, ErrThreadNotFound)
}

// HandleTitleJob is the queue handler for thread.title jobs.
func (s *ThreadService) HandleTitleJob(ctx context.Context, job queue.Job) error {
	return s.GenerateTitle(ctx, job.Target)
}

// GenerateTitle names a thread that still has the placeholder name after its
// first user message.
func (s *ThreadService) GenerateTitle(ctx context.Context, threadID string) error {
	tr := otel.Tracer("services/ThreadService")
	ctx, span := tr.Start(ctx, "GenerateTitle", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	th, err := repo.GetThreadByID(ctx, s.DB, threadID)
	if err != nil {
		return notFound(err, nil)
	}
	if !shouldAutoTitle(th.Name) {
		return nil
	}
	first, err := repo.FirstUserMessage(ctx, s.DB, threadID)
	if err != nil {
		return notFound(err, nil)
	}

	title := ""
	if s.Titler != nil {
		t, err := s.Titler.Title(ctx, first.Content, s.maxLen())
		if err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("title generation failed; using heuristic")
		}
		title = normalizeTitle(ai.CleanTitle(t, s.maxLen()))
	}
	if title == "" {
		title = s.generateTitleFromPrompt(first.Content)
	}
	if title == "" {
		return nil
	}
	return notFound(repo.SetThreadName(ctx, s.DB, threadID, s.clip(title)), nil)
}

// generateTitleFromPrompt derives a concise title from the prompt.
func (s *ThreadService) generateTitleFromPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

func (s *ThreadService) maxLen() int {
	if s.TitleMaxLen <= 0 {
		return 50
	}
	return s.TitleMaxLen
}

// clip truncates a thread name to the configured maximum rune length.
func (s *ThreadService) clip(title string) string {
	return clipRunes(title, s.maxLen())
}

// titleLocaleOrDefault returns the configured locale for casing or English if unset.
func (s *ThreadService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// validateSelection dedupes selected and checks every id is an owned
// documentation.
func validateSelection(ctx context.Context, db *gorm.DB, userID string, selected []string) ([]string, error) {
	ids := dedupe(selected)
	if len(ids) == 0 {
		return []string{}, nil
	}
	docs, err := repo.ListDocumentationsByIDs(ctx, db, userID, ids)
	if err != nil {
		return nil, err
	}
	if len(docs) != len(ids) {
		return nil, ErrNotOwner
	}
	return ids, nil
}

// shouldAutoTitle reports whether the current name is a placeholder.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(DefaultThreadName) || t == "untitled"
}

// clipRunes truncates s to max runes.
func clipRunes(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return strings.TrimSpace(string([]rune(s)[:max]))
	}
	return s
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// Extract Unicode letters with optional trailing numbers (e.g., "gwi2025").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"how": {}, "what": {}, "do": {}, "does": {}, "i": {}, "can": {}, "my": {},
}
