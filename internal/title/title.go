// Package title maintains human-readable thread titles.
//
// Titles follow a two-phase policy. Young threads (fewer than three
// conversational messages) are titled with a truncated copy of the
// first message, updated on every append. Once a thread reaches three
// conversational messages, a small model generates a short descriptive
// title, refreshed every third message. Title maintenance is best
// effort: failures are logged and never surface to the caller.
package title

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
)

// DefaultTitle is used when a thread has no messages to title from.
const DefaultTitle = "New Chat"

// maxTitleLen caps generated titles, in runes.
const maxTitleLen = 60

// recentWindow is how many trailing conversational messages feed the
// title prompt.
const recentWindow = 3

// refreshInterval is how many conversational messages elapse between
// model-generated title refreshes.
const refreshInterval = 3

var whitespaceRun = regexp.MustCompile(`\s+`)

// Completer produces a short free-form completion for a prompt.
// Satisfied by summarize.Summarizer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator computes titles from conversation content.
type Generator struct {
	completer Completer
	logger    *slog.Logger
}

// NewGenerator creates a title generator backed by the given completer.
func NewGenerator(completer Completer, logger *slog.Logger) *Generator {
	return &Generator{completer: completer, logger: logger}
}

// Compute derives a title from the trailing window of conversational
// messages. An empty conversation yields DefaultTitle. If the model
// call fails, the joined message text itself becomes the title,
// truncated with an ellipsis — a degraded title beats no title.
func (g *Generator) Compute(ctx context.Context, messages []llm.Message) string {
	recent := messages
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	var parts []string
	for _, m := range recent {
		if strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	if len(parts) == 0 {
		return DefaultTitle
	}
	joined := strings.Join(parts, "\n\n")

	prompt := fmt.Sprintf(
		"Generate a concise 3-6 word title for this conversation. "+
			"Respond with only the title, no quotes or punctuation.\n\n%s",
		joined,
	)

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("title generation failed, using fallback", "error", err)
		return Clean(truncateRunes(joined, 50) + "...")
	}

	title := Clean(raw)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// Clean normalizes a candidate title: strips surrounding quotes and
// whitespace, collapses internal whitespace runs to single spaces, and
// caps the length.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return truncateRunes(s, maxTitleLen)
}

// truncateRunes caps s at n runes, never splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Maintainer applies the title policy to stored threads after each
// completed turn.
type Maintainer struct {
	store     *thread.Store
	generator *Generator
	logger    *slog.Logger
}

// NewMaintainer creates a maintainer over the given store and
// generator.
func NewMaintainer(store *thread.Store, generator *Generator, logger *slog.Logger) *Maintainer {
	return &Maintainer{store: store, generator: generator, logger: logger}
}

// Update brings a thread's title in line with the policy. Errors are
// logged and swallowed — a missing title must never fail a turn.
func (m *Maintainer) Update(ctx context.Context, threadID string) {
	if err := m.update(ctx, threadID); err != nil {
		m.logger.Warn("title maintenance failed", "thread_id", threadID, "error", err)
	}
}

func (m *Maintainer) update(ctx context.Context, threadID string) error {
	count, err := m.store.ConversationCount(ctx, threadID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	// Young thread: mirror the first message until there is enough
	// conversation for the model to title meaningfully.
	if count < refreshInterval {
		msgs, err := m.store.ConversationMessages(ctx, threadID)
		if err != nil {
			return err
		}
		t := Clean(msgs[0].Content)
		if t == "" {
			t = DefaultTitle
		}
		return m.store.SetTitle(ctx, threadID, t, count)
	}

	state, err := m.store.TitleState(ctx, threadID)
	if err != nil {
		return err
	}
	if count%refreshInterval != 0 || count <= state.UpdatedAtCount {
		return nil
	}

	msgs, err := m.store.ConversationMessages(ctx, threadID)
	if err != nil {
		return err
	}
	t := m.generator.Compute(ctx, msgs)
	return m.store.SetTitle(ctx, threadID, t, count)
}
