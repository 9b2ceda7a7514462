package cli

import (
	"fmt"
	"strings"

	"chatanvil/internal/llm"
	"chatanvil/internal/parser"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

const defaultWrap = 100

// Renderer prints completions and extracted code to a Writer. With color
// disabled everything is written verbatim.
type Renderer struct {
	out      *Writer
	markdown bool
	md       *glamour.TermRenderer
}

// NewRenderer returns a Renderer. When markdown is set and the writer is in
// color mode, response text is rendered through glamour.
func NewRenderer(out *Writer, markdown bool) *Renderer {
	r := &Renderer{out: out, markdown: markdown}
	if markdown && out.ColorMode() {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(defaultWrap),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Completion prints the reasoning trace (if any) followed by the content.
func (r *Renderer) Completion(c llm.Completion) {
	if c.Reasoning != "" {
		r.out.WriteColored("[Reasoning]\n", ColorBold+ColorGray)
		r.out.WriteColored(strings.TrimRight(c.Reasoning, "\n")+"\n\n", ColorGray)
	}
	r.Response(c.Content)
}

func (r *Renderer) Response(content string) {
	if r.md != nil {
		if rendered, err := r.md.Render(content); err == nil {
			r.out.Write(rendered)
			return
		}
	}
	r.out.WriteLine(strings.TrimRight(content, "\n"))
}

// CodeBlocks prints each block under a language header.
func (r *Renderer) CodeBlocks(blocks []parser.CodeBlock) {
	if len(blocks) == 0 {
		r.out.WriteColored("no code blocks found\n", ColorYellow)
		return
	}
	for i, b := range blocks {
		lang := b.Language
		if lang == "" {
			lang = "text"
		}
		header := fmt.Sprintf("── %s (%d/%d) ──", lang, i+1, len(blocks))
		r.out.WriteColored(header+"\n", ColorBold+ColorCyan)

		code := strings.TrimRight(b.Content, "\n")
		if r.out.ColorMode() {
			code = Highlight(code, b.Language)
		}
		r.out.WriteLine(code)
		if i < len(blocks)-1 {
			r.out.WriteLine("")
		}
	}
}

func (r *Renderer) Error(err error) {
	r.out.WriteColored(fmt.Sprintf("Error: %v\n", err), ColorRed)
}

func (r *Renderer) Prompt(p string) {
	r.out.WriteColored(p, ColorBold+ColorGreen)
}

func (r *Renderer) Notice(msg string) {
	r.out.WriteColored(msg+"\n", ColorGray)
}

// Highlight returns code colored for a 256-color terminal. The lexer is
// picked by language, then by content analysis; any failure returns code
// unchanged.
func Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
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
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
