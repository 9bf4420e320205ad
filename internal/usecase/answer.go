package usecase

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var answerPrompt = template.Must(template.New("answer_prompt.txt").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(promptTemplates, "templates/answer_prompt.txt"))

// AnswerOptions controls answer composition.
type AnswerOptions struct {
	Limit           int
	ExcerptChars    int
	Suggestions     int
	FallbackMessage string

	// Composer, when set, writes the answer from the retrieved articles.
	Composer        port.LLM
	GenerateOptions port.GenerateOptions
	ComposeTimeout  time.Duration
}

// AnswerUseCase turns a user message into a response and logs the exchange.
type AnswerUseCase struct {
	retrieve *RetrieveUseCase
	chats    port.ChatLog
	opts     AnswerOptions
	logger   *slog.Logger
	now      func() time.Time
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(retrieve *RetrieveUseCase, chats port.ChatLog, opts AnswerOptions, logger *slog.Logger) *AnswerUseCase {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 500
	}
	if opts.Suggestions < 0 {
		opts.Suggestions = 0
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = "I couldn't find relevant information in our knowledge base. Please try rephrasing your question, or contact support."
	}
	if opts.ComposeTimeout <= 0 {
		opts.ComposeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retrieve: retrieve,
		chats:    chats,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Answer responds to message within sessionID, generating a session id when
// none is given. Retrieval failures degrade to the fallback message.
func (u *AnswerUseCase) Answer(ctx context.Context, sessionID, message string) (*domain.Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	articles, err := u.retrieve.Retrieve(ctx, message, u.opts.Limit)
	if err != nil {
		u.logger.Error("retrieval failed", "session_id", sessionID, "error", err)
		articles = nil
	}

	resp := u.compose(ctx, message, domain.Articles(articles))
	resp.SessionID = sessionID

	record := domain.ChatRecord{
		SessionID:   sessionID,
		UserMessage: message,
		BotResponse: resp.Answer,
		Timestamp:   u.now().UTC(),
	}
	if u.chats != nil {
		if err := u.chats.AppendChat(ctx, record); err != nil {
			u.logger.Warn("failed to record chat", "session_id", sessionID, "error", err)
		}
	}

	return resp, nil
}

func (u *AnswerUseCase) compose(ctx context.Context, message string, articles []domain.Article) *domain.Response {
	if len(articles) == 0 {
		return &domain.Response{
			Answer:      u.opts.FallbackMessage,
			Suggestions: []string{},
		}
	}

	first := articles[0]
	resp := &domain.Response{
		Answer:      Excerpt(first.Content, u.opts.ExcerptChars),
		Source:      first.Title,
		URL:         first.URL,
		Suggestions: suggestions(articles, u.opts.Suggestions),
	}

	if u.opts.Composer != nil {
		answer, err := u.generate(ctx, message, articles)
		if err != nil {
			u.logger.Warn("answer composition failed, using excerpt",
				"model", u.opts.Composer.ModelName(),
				"error", err)
		} else {
			resp.Answer = answer
		}
	}
	return resp
}

func (u *AnswerUseCase) generate(ctx context.Context, message string, articles []domain.Article) (string, error) {
	type entry struct {
		Title   string
		Excerpt string
	}
	entries := make([]entry, len(articles))
	for i, a := range articles {
		entries[i] = entry{Title: a.Title, Excerpt: Excerpt(a.Content, u.opts.ExcerptChars)}
	}

	var buf bytes.Buffer
	err := answerPrompt.Execute(&buf, struct {
		Question string
		Articles []entry
	}{message, entries})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, u.opts.ComposeTimeout)
	defer cancel()

	answer, err := u.opts.Composer.Generate(ctx, buf.String(), u.opts.GenerateOptions)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("model returned an empty answer")
	}
	return answer, nil
}

// Excerpt returns the first n runes of s followed by "..." when s is longer.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func suggestions(articles []domain.Article, n int) []string {
	out := []string{}
	for _, a := range articles[1:] {
		if len(out) == n {
			break
		}
		out = append(out, a.Title)
	}
	return out
}
