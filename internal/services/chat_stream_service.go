// Package services – ChatStreamService
//
// This file implements the chat turn: a user message is persisted together
// with an assistant placeholder bound to a fresh stream handle, and a
// chat.stream job is enqueued. The job (Produce) retrieves context for the
// thread's selected documentations, streams the completion fragment by
// fragment into the stream_fragments log and finally stores the full text on
// the assistant message.
//
// Readers never talk to the producer. Snapshot and Follow read the persisted
// fragment log, so a client that disconnects can resume from the last seq it
// saw, and any number of readers can observe the same stream.
//
// Failure: when retrieval or generation fails, a fixed error fragment is
// appended and the message is finalized with status error. The concatenation
// of all fragments of a finalized stream always equals the message content.
package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/observability"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamErrorText is the fragment appended when a turn fails.
const StreamErrorText = "Sorry, an error occurred while generating the response."

// SendResult is the outcome of SendMessage.
type SendResult struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	StreamID         string
	// Replayed is set when the result was served from an idempotency record.
	Replayed bool
}

// StreamSnapshot is the persisted state of a stream after a given seq.
type StreamSnapshot struct {
	StreamID  string                  `json:"stream_id"`
	MessageID string                  `json:"message_id"`
	ThreadID  string                  `json:"thread_id"`
	Status    domain.StreamStatus     `json:"status"`
	Done      bool                    `json:"done"`
	Content   string                  `json:"content,omitempty"`
	Fragments []domain.StreamFragment `json:"fragments"`
}

// ChatStreamService coordinates chat turns and their streams.
type ChatStreamService struct {
	DB        *gorm.DB
	Queue     queue.Queue
	Meter     metering.Meter
	Retriever Retriever
	Generator ai.Generator

	// HistoryWindow bounds the prior messages sent with a turn.
	HistoryWindow int
	// MaxPromptRunes caps user prompts; zero disables the check.
	MaxPromptRunes int
	// SystemPrompt overrides ai.DefaultSystemPrompt when set.
	SystemPrompt string
	// PollInterval is how often Follow re-reads the fragment log.
	PollInterval time.Duration
	// IdempotencyTTL is how long a send result can be replayed.
	IdempotencyTTL time.Duration

	Now func() time.Time
}

// SendMessage appends prompt to the thread, creates the assistant placeholder
// and schedules generation. When selected is non-nil the thread's selection
// is replaced first. A non-empty idemKey that matches a live record replays
// the recorded turn instead of starting a new one.
func (s *ChatStreamService) SendMessage(ctx context.Context, userID, threadID, prompt string, selected *[]string, idemKey string) (*SendResult, error) {
	tr := otel.Tracer("services/ChatStreamService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("thread.id", threadID),
			attribute.Int("prompt.len", len(prompt)),
		),
	)
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	th, err := repo.GetThread(ctx, s.DB, threadID, userID)
	if err != nil {
		return nil, notFound(err, ErrThreadNotFound)
	}

	if idemKey != "" {
		if res, err := s.replay(ctx, userID, threadID, idemKey); err == nil {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return res, nil
		}
	}

	bal, err := s.Meter.Check(ctx, userID, metering.FeatureChats)
	if err != nil {
		return nil, err
	}
	if !bal.Allowed {
		return nil, ErrQuotaExceeded
	}

	if selected != nil {
		ids, err := validateSelection(ctx, s.DB, userID, *selected)
		if err != nil {
			return nil, err
		}
		if err := repo.UpdateThreadSelection(ctx, s.DB, threadID, userID, ids); err != nil {
			return nil, notFound(err, ErrThreadNotFound)
		}
	}

	first, err := repo.CountMessages(ctx, s.DB, threadID)
	if err != nil {
		return nil, err
	}

	var user, asst *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if user, err = repo.CreateUserMessage(ctx, tx, threadID, prompt); err != nil {
			return err
		}
		if asst, err = repo.CreateAssistantPlaceholder(ctx, tx, threadID, user.CreatedAt); err != nil {
			return err
		}
		return repo.TouchThread(ctx, tx, threadID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist turn")
		return nil, err
	}

	if err := s.Meter.Track(ctx, userID, metering.FeatureChats, 1); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("track chat usage")
	}

	if err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindChatStream, Target: asst.StreamID}, 0); err != nil {
		// Nothing will ever produce this stream; close it so readers terminate.
		log.Error().Err(err).Str("stream_id", asst.StreamID).Msg("enqueue chat stream")
		s.fail(context.WithoutCancel(ctx), asst.StreamID, 0, "")
		if m, err := repo.GetMessage(ctx, s.DB, asst.ID); err == nil {
			asst = m
		}
	}
	if first == 0 && shouldAutoTitle(th.Name) {
		if err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindThreadTitle, Target: threadID}, 0); err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("enqueue thread title")
		}
	}

	if idemKey != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, userID, threadID, idemKey, asst.ID, 200, s.idempotencyTTL()); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("store idempotency record")
		}
	}

	return &SendResult{UserMessage: user, AssistantMessage: asst, StreamID: asst.StreamID}, nil
}

// replay rebuilds a SendResult from an idempotency record.
func (s *ChatStreamService) replay(ctx context.Context, userID, threadID, key string) (*SendResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, threadID, key, s.now())
	if err != nil {
		return nil, err
	}
	asst, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if err != nil {
		return nil, err
	}
	res := &SendResult{AssistantMessage: asst, StreamID: asst.StreamID, Replayed: true}
	if prev, err := repo.ListRecentMessages(ctx, s.DB, threadID, asst.CreatedAt, 1); err == nil && len(prev) == 1 && prev[0].Role == domain.RoleUser {
		res.UserMessage = &prev[0]
	}
	return res, nil
}

// HandleJob is the queue handler for chat.stream jobs.
func (s *ChatStreamService) HandleJob(ctx context.Context, job queue.Job) error {
	return s.Produce(ctx, job.Target)
}

// Produce generates the assistant reply for streamID. A stream that is
// already finalized, or that another producer has started, is left alone.
func (s *ChatStreamService) Produce(ctx context.Context, streamID string) error {
	tr := otel.Tracer("services/ChatStreamService")
	ctx, span := tr.Start(ctx, "Produce", trace.WithAttributes(attribute.String("stream.id", streamID)))
	defer span.End()

	msg, err := repo.GetMessageByStreamID(ctx, s.DB, streamID)
	if err != nil {
		return notFound(err, nil)
	}
	if !msg.IsStreaming {
		return nil
	}
	seq, err := repo.NextFragmentSeq(ctx, s.DB, streamID)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("stream_id", streamID).Msg("read stream position")
		s.closeOrphan(context.WithoutCancel(ctx), streamID)
		return nil
	}
	if seq > 0 {
		log.Warn().Str("stream_id", streamID).Int("seq", seq).Msg("stream already has fragments; skipping")
		return nil
	}
	th, err := repo.GetThreadByID(ctx, s.DB, msg.ThreadID)
	if err != nil {
		return s.abort(ctx, span, streamID, 0, "", err)
	}
	if err := repo.SetStreamStatus(ctx, s.DB, streamID, domain.StreamStreaming); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Finalized by someone else in the meantime.
			return nil
		}
		return s.abort(ctx, span, streamID, 0, "", err)
	}

	question, history, err := s.history(ctx, msg)
	if err != nil {
		return s.abort(ctx, span, streamID, 0, "", err)
	}

	retrieved, err := s.Retriever.Retrieve(ctx, th.UserID, question, th.SelectedDocumentation)
	if err != nil {
		return s.abort(ctx, span, streamID, 0, "", err)
	}
	span.SetAttributes(attribute.Int("context.chunks", retrieved.Chunks))

	stream, err := s.Generator.Generate(ctx, ai.Prompt{
		System:   s.SystemPrompt,
		Context:  retrieved.Text,
		History:  history,
		Question: question,
	})
	if err != nil {
		return s.abort(ctx, span, streamID, 0, "", err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.abort(ctx, span, streamID, seq, b.String(), err)
		}
		if frag == "" {
			continue
		}
		if err := repo.AppendFragment(ctx, s.DB, streamID, seq, frag); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				// A second producer owns the stream.
				log.Warn().Str("stream_id", streamID).Int("seq", seq).Msg("stream taken over; stopping")
				return nil
			}
			return s.abort(ctx, span, streamID, seq, b.String(), err)
		}
		seq++
		b.WriteString(frag)
	}

	if err := repo.FinalizeMessage(ctx, s.DB, streamID, b.String(), domain.StreamComplete); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("stream_id", streamID).Msg("stream finalized elsewhere")
			return nil
		}
		return s.abort(ctx, span, streamID, seq, b.String(), err)
	}
	observability.ChatTurns.WithLabelValues(string(domain.StreamComplete)).Inc()
	log.Info().
		Str("stream_id", streamID).
		Str("thread_id", th.ID).
		Int("fragments", seq).
		Int("context_chunks", retrieved.Chunks).
		Msg("chat turn complete")
	return nil
}

// history returns the triggering user message and the bounded history before
// it, oldest first. In-flight assistant placeholders are skipped.
func (s *ChatStreamService) history(ctx context.Context, msg *domain.Message) (string, []string, error) {
	window := s.HistoryWindow
	if window <= 0 {
		window = 10
	}
	recent, err := repo.ListRecentMessages(ctx, s.DB, msg.ThreadID, msg.CreatedAt, window+1)
	if err != nil {
		return "", nil, err
	}
	question := ""
	if n := len(recent); n > 0 && recent[n-1].Role == domain.RoleUser {
		question = recent[n-1].Content
		recent = recent[:n-1]
	}
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	history := make([]string, 0, len(recent))
	for _, m := range recent {
		if m.Content == "" {
			continue
		}
		history = append(history, m.Content)
	}
	return question, history, nil
}

// abort ends a failed turn and returns nil so the job is not retried; the
// failure is visible on the message itself.
func (s *ChatStreamService) abort(ctx context.Context, span trace.Span, streamID string, seq int, partial string, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "generate")
	log.Error().Err(cause).Str("stream_id", streamID).Msg("chat turn failed")
	s.fail(context.WithoutCancel(ctx), streamID, seq, partial)
	return nil
}

// fail appends the error fragment at seq and finalizes the message with
// partial followed by that fragment.
func (s *ChatStreamService) fail(ctx context.Context, streamID string, seq int, partial string) {
	text := StreamErrorText
	if partial != "" {
		text = "\n\n" + StreamErrorText
	}
	if err := repo.AppendFragment(ctx, s.DB, streamID, seq, text); err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("append error fragment")
		return
	}
	if err := repo.FinalizeMessage(ctx, s.DB, streamID, partial+text, domain.StreamError); err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("finalize failed stream")
		return
	}
	observability.ChatTurns.WithLabelValues(string(domain.StreamError)).Inc()
}

// closeOrphan finalizes a stream nobody will produce any more, keeping the
// fragments already written as the partial content.
func (s *ChatStreamService) closeOrphan(ctx context.Context, streamID string) bool {
	msg, err := repo.GetMessageByStreamID(ctx, s.DB, streamID)
	if err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("load orphaned stream")
		return false
	}
	if !msg.IsStreaming {
		return false
	}
	frags, err := repo.ListFragments(ctx, s.DB, streamID, -1)
	if err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("read orphaned stream")
		return false
	}
	var b strings.Builder
	next := 0
	for _, f := range frags {
		b.WriteString(f.Text)
		next = f.Seq + 1
	}
	s.fail(ctx, streamID, next, b.String())
	return true
}

// DropJob is called for chat.stream jobs the queue discards on shutdown. The
// stream is closed so readers terminate instead of following it forever.
func (s *ChatStreamService) DropJob(ctx context.Context, job queue.Job) {
	if job.Kind != queue.KindChatStream {
		return
	}
	if s.closeOrphan(ctx, job.Target) {
		log.Warn().Str("stream_id", job.Target).Msg("closed stream of dropped job")
	}
}

// ResumeOpen handles every stream still marked streaming when the process
// starts. The queue is in-process, so none of them has a live producer.
// Streams without fragments are enqueued again; the rest are finalized with
// the error fragment after their partial output.
func (s *ChatStreamService) ResumeOpen(ctx context.Context) (resumed, closed int, err error) {
	open, err := repo.ListOpenStreams(ctx, s.DB)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range open {
		seq, err := repo.NextFragmentSeq(ctx, s.DB, m.StreamID)
		if err != nil {
			return resumed, closed, err
		}
		if seq == 0 && s.Queue != nil {
			err := s.Queue.Enqueue(ctx, queue.Job{Kind: queue.KindChatStream, Target: m.StreamID}, 0)
			if err == nil {
				resumed++
				continue
			}
			log.Warn().Err(err).Str("stream_id", m.StreamID).Msg("re-enqueue chat stream")
		}
		if s.closeOrphan(ctx, m.StreamID) {
			closed++
		}
	}
	if resumed+closed > 0 {
		log.Info().Int("resumed", resumed).Int("closed", closed).Msg("recovered open streams")
	}
	return resumed, closed, nil
}

// SweepStuck finalizes streams with no activity since cutoff. Their producer
// died or hung, and they would otherwise stay streaming forever.
func (s *ChatStreamService) SweepStuck(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := repo.ListStuckStreams(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range stuck {
		if s.closeOrphan(ctx, m.StreamID) {
			n++
		}
	}
	if n > 0 {
		log.Warn().Int("count", n).Time("cutoff", cutoff).Msg("finalized stuck streams")
	}
	return n, nil
}

// RunSweeper calls SweepStuck every interval with a cutoff of stuckAfter ago
// until ctx is done.
func (s *ChatStreamService) RunSweeper(ctx context.Context, interval, stuckAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStuck(ctx, s.now().Add(-stuckAfter)); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("sweep stuck streams")
			}
		}
	}
}

// ListMessages returns a page of an owned thread's messages, newest first.
func (s *ChatStreamService) ListMessages(ctx context.Context, userID, threadID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := repo.GetThread(ctx, s.DB, threadID, userID); err != nil {
		return nil, 0, notFound(err, ErrThreadNotFound)
	}
	p := utils.NewPage(page, pageSize)
	total, err := repo.CountMessages(ctx, s.DB, threadID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, threadID, p.Offset(), p.Size)
	return items, total, err
}

// Snapshot returns the fragments of an owned stream with seq > afterSeq.
func (s *ChatStreamService) Snapshot(ctx context.Context, userID, streamID string, afterSeq int) (*StreamSnapshot, error) {
	msg, err := s.ownedStream(ctx, userID, streamID)
	if err != nil {
		return nil, err
	}
	frags, err := repo.ListFragments(ctx, s.DB, streamID, afterSeq)
	if err != nil {
		return nil, err
	}
	snap := &StreamSnapshot{
		StreamID:  streamID,
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Status:    msg.StreamStatus,
		Done:      !msg.IsStreaming,
		Fragments: frags,
	}
	if snap.Done {
		snap.Content = msg.Content
	}
	return snap, nil
}

// Follow delivers the fragments of an owned stream with seq > afterSeq to emit
// as they are persisted and returns the terminal status once the stream is
// finalized. It stops early when ctx is done or emit fails.
func (s *ChatStreamService) Follow(ctx context.Context, userID, streamID string, afterSeq int, emit func(domain.StreamFragment) error) (domain.StreamStatus, error) {
	if _, err := s.ownedStream(ctx, userID, streamID); err != nil {
		return "", err
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Status first: once finalize is observed every fragment is already
		// in the log.
		msg, err := repo.GetMessageByStreamID(ctx, s.DB, streamID)
		if err != nil {
			return "", notFound(err, ErrStreamNotFound)
		}
		frags, err := repo.ListFragments(ctx, s.DB, streamID, afterSeq)
		if err != nil {
			return "", err
		}
		for _, f := range frags {
			if err := emit(f); err != nil {
				return "", err
			}
			afterSeq = f.Seq
		}
		if !msg.IsStreaming {
			return msg.StreamStatus, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// ownedStream loads the message bound to streamID and checks the thread
// belongs to userID.
func (s *ChatStreamService) ownedStream(ctx context.Context, userID, streamID string) (*domain.Message, error) {
	msg, err := repo.GetMessageByStreamID(ctx, s.DB, streamID)
	if err != nil {
		return nil, notFound(err, ErrStreamNotFound)
	}
	if _, err := repo.GetThread(ctx, s.DB, msg.ThreadID, userID); err != nil {
		return nil, notFound(err, ErrStreamNotFound)
	}
	return msg, nil
}

func (s *ChatStreamService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func (s *ChatStreamService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
