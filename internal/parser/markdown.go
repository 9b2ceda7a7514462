package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser extracts fenced code blocks. DefaultLanguage, when set,
// is added to untagged fences by FormatMessage.
type MarkdownParser struct {
	DefaultLanguage string
}

func (p *MarkdownParser) Name() string {
	return "markdown"
}

// ParseResponse puts every fence on its own line.
func (p *MarkdownParser) ParseResponse(text string) (string, error) {
	return normalizeFences(text, ""), nil
}

func (p *MarkdownParser) ExtractCode(text string) ([]CodeBlock, error) {
	return fencedBlocks(text), nil
}

func (p *MarkdownParser) FormatMessage(message string) string {
	return normalizeFences(message, p.DefaultLanguage)
}

var markdown = goldmark.New()

// fencedBlocks returns the closed fenced code blocks of src in document
// order. A fence left open until the end of the input yields nothing.
// Fences are put on their own lines first, so an opening fence after prose
// or text glued to a closing fence still delimit a block.
func fencedBlocks(src string) []CodeBlock {
	source := []byte(normalizeFences(src, ""))
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fc, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		lines := fc.Lines()
		end := -1
		if lines.Len() > 0 {
			end = lines.At(lines.Len() - 1).Stop
		} else if fc.Info != nil {
			end = fc.Info.Segment.Stop
		}
		if end < 0 || !closedAt(source, end) {
			return ast.WalkSkipChildren, nil
		}

		var buf bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		blocks = append(blocks, CodeBlock{
			Language: string(fc.Language(source)),
			Content:  strings.TrimRight(buf.String(), "\r\n"),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// closedAt reports whether a closing fence follows offset end.
func closedAt(source []byte, end int) bool {
	rest := bytes.TrimLeft(source[end:], " \t\r\n>")
	return bytes.HasPrefix(rest, []byte("```")) || bytes.HasPrefix(rest, []byte("~~~"))
}

const fence = "```"

// normalizeFences makes sure each ``` marker starts a line and each closing
// marker ends one. Opening markers without a language get lang, if set.
func normalizeFences(s, lang string) string {
	if !strings.Contains(s, fence) {
		return s
	}

	var b strings.Builder
	open := false
	for {
		i := strings.Index(s, fence)
		if i < 0 {
			b.WriteString(s)
			break
		}
		before := s[:i]
		b.WriteString(before)
		if prev := lastByte(&b); prev != 0 && prev != '\n' {
			b.WriteByte('\n')
		}

		// consume the whole run of backticks
		j := i
		for j < len(s) && s[j] == '`' {
			j++
		}
		b.WriteString(s[i:j])
		s = s[j:]

		if !open {
			if lang != "" && (s == "" || s[0] == '\n' || s[0] == '\r') {
				b.WriteString(lang)
			}
			open = true
			continue
		}

		open = false
		if s != "" && s[0] != '\n' && s[0] != '\r' {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func lastByte(b *strings.Builder) byte {
	s := b.String()
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}
