// Package render draws chat messages for the terminal: text segments as
// markdown, code segments as highlighted blocks, still-open fences marked
// as in progress.
package render

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/fence"
	"github.com/killallgit/genesis/pkg/logger"
)

var (
	mutedColor  = lipgloss.Color("244")
	accentColor = lipgloss.Color("39")
	errorColor  = lipgloss.Color("196")
	borderColor = lipgloss.Color("238")

	userHeader      = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	assistantHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle      = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle      = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	badgeStyle      = lipgloss.NewStyle().Foreground(mutedColor).Bold(true)
	lineNumStyle    = lipgloss.NewStyle().Foreground(mutedColor).Width(4).Align(lipgloss.Right).MarginRight(1)
)

// Renderer turns messages into terminal text. It caches fence parsing
// per message so a streaming message is not rescanned from the start on
// every update.
type Renderer struct {
	style    string
	width    int
	color    bool
	markdown *glamour.TermRenderer
	memo     *fence.Memo
}

// Option configures a Renderer
type Option func(*Renderer)

// WithColor turns ANSI highlighting on or off
func WithColor(color bool) Option {
	return func(r *Renderer) { r.color = color }
}

func New(cfg config.RenderConfig, opts ...Option) *Renderer {
	r := &Renderer{
		style: cfg.Style,
		width: cfg.Width,
		color: true,
		memo:  fence.NewMemo(),
	}
	if r.width <= 0 {
		r.width = 100
	}
	for _, opt := range opts {
		opt(r)
	}

	if cfg.Markdown {
		styleOpt := glamour.WithAutoStyle()
		if !r.color {
			styleOpt = glamour.WithStandardStyle("notty")
		}
		md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.width))
		if err != nil {
			logger.WithComponent("render").Warn("Markdown renderer unavailable, using plain text", "error", err)
		} else {
			r.markdown = md
		}
	}
	return r
}

// Forget drops the cached parses of a message, both steps included
func (r *Renderer) Forget(id string) {
	r.memo.Forget(id)
	r.memo.Forget(stepKey(id, chat.Step1))
	r.memo.Forget(stepKey(id, chat.Step2))
}

func stepKey(id string, step chat.Step) string {
	return id + "/" + strconv.Itoa(int(step))
}

// Reset drops every cached parse
func (r *Renderer) Reset() {
	r.memo.Reset()
}

// Message renders a message with its role header
func (r *Renderer) Message(msg chat.Message) string {
	var b strings.Builder

	if msg.IsUser() {
		b.WriteString(userHeader.Render("Tú"))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		for _, img := range msg.Images {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("[imagen] " + img.Name))
		}
		return b.String()
	}

	b.WriteString(assistantHeader.Render("IA"))
	b.WriteString("\n")

	switch {
	case msg.IsError:
		b.WriteString(errorStyle.Render(msg.Content))
	case msg.IsLoading:
		b.WriteString(mutedStyle.Render("Pensando…"))
	case msg.IsTwoStep:
		b.WriteString(r.twoStep(msg))
	default:
		b.WriteString(r.Body(msg.ID, msg.Content))
	}
	return b.String()
}

func (r *Renderer) twoStep(msg chat.Message) string {
	var b strings.Builder

	b.WriteString(badgeStyle.Render("▾ Paso 1: diagrama"))
	b.WriteString("\n")
	b.WriteString(r.Body(stepKey(msg.ID, chat.Step1), msg.Step1Text))

	if msg.CurrentStep == chat.Step2 {
		b.WriteString("\n")
		b.WriteString(badgeStyle.Render("▾ Paso 2: código"))
		b.WriteString("\n")
		b.WriteString(r.Body(stepKey(msg.ID, chat.Step2), msg.Step2Text))
	} else if msg.IsStreaming {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Generando código…"))
	}
	return b.String()
}

// Body renders text segment by segment. id keys the parse cache.
func (r *Renderer) Body(id, text string) string {
	segments := r.memo.Parse(id, text)

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.IsCode() {
			parts = append(parts, r.CodeBlock(seg))
			continue
		}
		if strings.TrimSpace(seg.Content) == "" {
			continue
		}
		parts = append(parts, r.text(seg.Content))
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) text(s string) string {
	if r.markdown == nil {
		return strings.TrimSpace(s)
	}
	rendered, err := r.markdown.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(rendered, "\n")
}

// CodeBlock renders one code segment with line numbers and a language badge
func (r *Renderer) CodeBlock(seg fence.Segment) string {
	code := seg.Content
	if seg.Complete {
		code = strings.TrimSpace(code)
	} else {
		code = strings.TrimRight(code, "\n")
	}

	highlighted := r.highlight(code, seg.Language)
	lines := strings.Split(highlighted, "\n")
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = lineNumStyle.Render(strconv.Itoa(i+1)) + line
	}

	header := badgeStyle.Render(seg.Language)
	if !seg.Complete {
		header += " " + mutedStyle.Render("(escribiendo…)")
	}

	maxWidth := r.width - 4
	if maxWidth < 20 {
		maxWidth = 20
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + "\n" + strings.Join(numbered, "\n"))
}

func (r *Renderer) highlight(code, language string) string {
	if !r.color {
		return code
	}
	return Highlight(code, language, r.style)
}

// Highlight applies chroma syntax highlighting, returning code unchanged
// when it cannot be tokenized
func Highlight(code, language, style string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	s := chromaStyles.Get(style)
	if s == nil {
		s = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, s, iterator); err != nil {
		return code
	}
	return buf.String()
}
