package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// codeFields are the object keys whose string values are treated as code.
var codeFields = []string{"code", "source", "function_code", "function", "implementation", "script"}

// JSONParser re-indents JSON responses and finds code inside them. When
// Strict is false, text that is not JSON is returned unchanged; when true,
// ParseResponse fails with a *ParseError.
type JSONParser struct {
	Strict bool
}

func (p *JSONParser) Name() string {
	return "json"
}

func (p *JSONParser) ParseResponse(text string) (string, error) {
	raw, err := jsonPayload(text)
	if err != nil {
		if p.Strict {
			return "", &ParseError{Format: "json", Err: err}
		}
		return text, nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, []byte(raw), "", "  "); err != nil {
		if p.Strict {
			return "", &ParseError{Format: "json", Err: err}
		}
		return text, nil
	}
	return out.String(), nil
}

// ExtractCode walks the JSON document for code. Text that is not JSON
// falls back to its fenced code blocks; fenced JSON is walked in turn.
func (p *JSONParser) ExtractCode(text string) ([]CodeBlock, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		v, err := decodeOrdered(trimmed)
		if err != nil {
			return nil, nil
		}
		return walkJSON(v, nil), nil
	}

	var blocks []CodeBlock
	for _, fb := range fencedBlocks(text) {
		if fb.Language == "json" || fb.Language == "" {
			if v, err := decodeOrdered(fb.Content); err == nil {
				if found := walkJSON(v, nil); len(found) > 0 {
					blocks = append(blocks, found...)
					continue
				}
			}
		}
		blocks = append(blocks, fb)
	}
	return blocks, nil
}

// FormatMessage leaves JSON as is and wraps anything else as {"message": ...}.
func (p *JSONParser) FormatMessage(message string) string {
	if json.Valid([]byte(strings.TrimSpace(message))) {
		return message
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]string{"message": message}); err != nil {
		return message
	}
	return strings.TrimRight(buf.String(), "\n")
}

// jsonPayload returns the JSON text in s: s itself, or the first fenced
// json block.
func jsonPayload(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	for _, fb := range fencedBlocks(s) {
		if fb.Language == "json" && json.Valid([]byte(fb.Content)) {
			return fb.Content, nil
		}
	}

	var v any
	err := json.Unmarshal([]byte(trimmed), &v)
	if err == nil {
		err = errors.New("no JSON document found")
	}
	return "", err
}

// member and object keep JSON object keys in document order so code
// blocks come out in the order they were written.
type member struct {
	Key   string
	Value any
}

type object []member

func (o object) get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func decodeOrdered(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj object
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

func walkJSON(v any, blocks []CodeBlock) []CodeBlock {
	switch t := v.(type) {
	case object:
		lang, hasLang := t.get("language")
		langStr, _ := lang.(string)

		if content, ok := t.get("content"); ok && hasLang {
			if s, ok := content.(string); ok {
				blocks = append(blocks, CodeBlock{Language: langStr, Content: s})
			}
		}
		for _, m := range t {
			if s, ok := m.Value.(string); ok && isCodeField(m.Key) {
				l := langStr
				if !hasLang {
					l = languageForField(m.Key)
				}
				blocks = append(blocks, CodeBlock{Language: l, Content: s})
			}
		}
		for _, m := range t {
			switch m.Value.(type) {
			case object, []any:
				blocks = walkJSON(m.Value, blocks)
			}
		}
	case []any:
		for _, item := range t {
			blocks = walkJSON(item, blocks)
		}
	}
	return blocks
}

func isCodeField(key string) bool {
	for _, f := range codeFields {
		if key == f {
			return true
		}
	}
	return false
}

func languageForField(key string) string {
	if key == "script" {
		return "shell"
	}
	return ""
}
