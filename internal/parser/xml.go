package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

// XMLParser pretty-prints XML responses and extracts <code> and <source>
// elements, fenced blocks and freestanding XML fragments.
type XMLParser struct{}

func (p *XMLParser) Name() string {
	return "xml"
}

// ParseResponse pretty-prints the first XML document found in text: a
// fenced xml block, the whole text, or an inline fragment. Text without
// well-formed XML is returned unchanged.
func (p *XMLParser) ParseResponse(text string) (string, error) {
	doc, ok := findXML(text)
	if !ok {
		return text, nil
	}
	pretty, err := prettyXML(doc)
	if err != nil {
		return text, nil
	}
	return pretty, nil
}

func (p *XMLParser) ExtractCode(text string) ([]CodeBlock, error) {
	var blocks []CodeBlock

	for _, fb := range fencedBlocks(text) {
		if fb.Language == "xml" && wellFormed(fb.Content) {
			if found := codeElements(fb.Content); len(found) > 0 {
				blocks = append(blocks, found...)
				continue
			}
		}
		blocks = append(blocks, fb)
	}

	for _, frag := range xmlFragments(stripFences(text)) {
		if found := codeElements(frag); len(found) > 0 {
			blocks = append(blocks, found...)
			continue
		}
		blocks = append(blocks, CodeBlock{Language: "xml", Content: frag})
	}
	return blocks, nil
}

// FormatMessage leaves XML as is and wraps anything else in <message>.
func (p *XMLParser) FormatMessage(message string) string {
	if wellFormed(strings.TrimSpace(message)) {
		return message
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<message>")
	if err := xml.EscapeText(&buf, []byte(message)); err != nil {
		return message
	}
	buf.WriteString("</message>")
	return buf.String()
}

func findXML(text string) (string, bool) {
	for _, fb := range fencedBlocks(text) {
		if fb.Language == "xml" && wellFormed(fb.Content) {
			return fb.Content, true
		}
	}
	trimmed := strings.TrimSpace(text)
	if wellFormed(trimmed) {
		return trimmed, true
	}
	if frags := xmlFragments(text); len(frags) > 0 {
		return frags[0], true
	}
	return "", false
}

// wellFormed reports whether s is a single well-formed XML document with
// one root element and no stray text around it.
func wellFormed(s string) bool {
	if s == "" {
		return false
	}
	dec := xml.NewDecoder(strings.NewReader(s))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return roots == 1 && depth == 0
		}
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		}
	}
}

// prettyXML re-encodes s with two-space indentation and no blank lines.
// Raw tokens are used so namespace prefixes survive as written.
func prettyXML(s string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			t.Name = flatName(t.Name)
			attrs := make([]xml.Attr, len(t.Attr))
			for i, a := range t.Attr {
				attrs[i] = xml.Attr{Name: flatName(a.Name), Value: a.Value}
			}
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			t.Name = flatName(t.Name)
			tok = t
		case xml.CharData:
			trimmed := bytes.TrimSpace(t)
			if len(trimmed) == 0 {
				continue
			}
			tok = xml.CharData(trimmed)
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", err
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}

	lines := strings.Split(buf.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func flatName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}

// codeElements collects the text of every <code> and <source> element.
func codeElements(s string) []CodeBlock {
	dec := xml.NewDecoder(strings.NewReader(s))

	var blocks []CodeBlock
	var current *CodeBlock
	var text strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil
			}
			return blocks
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if current != nil {
				depth++
				continue
			}
			if t.Name.Local == "code" || t.Name.Local == "source" {
				current = &CodeBlock{}
				for _, a := range t.Attr {
					if a.Name.Local == "language" {
						current.Language = a.Value
					}
				}
				text.Reset()
				depth = 0
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			current.Content = strings.TrimSpace(text.String())
			blocks = append(blocks, *current)
			current = nil
		case xml.CharData:
			if current != nil {
				text.Write(t)
			}
		}
	}
}

var openTag = regexp.MustCompile(`<([A-Za-z_][\w:.-]*)(?:\s[^<>]*?)?(/?)>`)

// xmlFragments scans free text for well-formed XML elements, left to right.
func xmlFragments(s string) []string {
	var frags []string
	pos := 0
	for pos < len(s) {
		loc := openTag.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		tagEnd := pos + loc[1]
		name := s[pos+loc[2] : pos+loc[3]]
		selfClosing := loc[5] > loc[4]

		if selfClosing {
			frags = append(frags, s[start:tagEnd])
			pos = tagEnd
			continue
		}

		closing := "</" + name + ">"
		found := false
		for from := tagEnd; ; {
			j := strings.Index(s[from:], closing)
			if j < 0 {
				break
			}
			end := from + j + len(closing)
			if candidate := s[start:end]; wellFormed(candidate) {
				frags = append(frags, candidate)
				pos = end
				found = true
				break
			}
			from = end
		}
		if !found {
			pos = start + 1
		}
	}
	return frags
}

// stripFences removes fenced regions and their marker lines.
func stripFences(s string) string {
	var b strings.Builder
	inFence := false
	for _, line := range strings.SplitAfter(s, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence {
			b.WriteString(line)
		}
	}
	return b.String()
}
