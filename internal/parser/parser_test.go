package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParser(t *testing.T) {
	p := &DefaultParser{}
	for _, in := range []string{"", "hello", "```go\nx\n```", "{\"a\": 1}"} {
		out, err := p.ParseResponse(in)
		require.NoError(t, err)
		assert.Equal(t, in, out)

		_, err = p.ExtractCode(in)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	}
}

func TestFenceRoundTrip(t *testing.T) {
	code := "func main() {\n\tfmt.Println(\"hi\")\n}"
	wrapped := "Here you go:\n\n```go\n" + code + "\n```\n\nEnjoy."

	for _, key := range []string{"markdown", "json", "xml"} {
		t.Run(key, func(t *testing.T) {
			p, err := New(key)
			require.NoError(t, err)

			blocks, err := p.ExtractCode(wrapped)
			require.NoError(t, err)
			require.Len(t, blocks, 1)
			assert.Equal(t, code, blocks[0].Content)
			assert.Equal(t, "go", blocks[0].Language)
		})
	}
}

func TestMarkdownParser_ExtractCode(t *testing.T) {
	p := &MarkdownParser{}

	blocks, err := p.ExtractCode("```python\nprint(1)\n```")
	require.NoError(t, err)
	assert.Equal(t, []CodeBlock{{Language: "python", Content: "print(1)"}}, blocks)

	blocks, err = p.ExtractCode("first\n```\nuntagged\n```\nthen\n```js\nconsole.log(2)\n```\n")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, CodeBlock{Language: "", Content: "untagged"}, blocks[0])
	assert.Equal(t, CodeBlock{Language: "js", Content: "console.log(2)"}, blocks[1])
}

func TestMarkdownParser_UnclosedFence(t *testing.T) {
	p := &MarkdownParser{}

	blocks, err := p.ExtractCode("```python\nprint(1)\n")
	require.NoError(t, err)
	assert.Empty(t, blocks)

	blocks, err = p.ExtractCode("```sh\nls\n```\n\n```python\nprint(1)")
	require.NoError(t, err)
	assert.Equal(t, []CodeBlock{{Language: "sh", Content: "ls"}}, blocks)
}

func TestMarkdownParser_InlineFences(t *testing.T) {
	p := &MarkdownParser{}
	want := []CodeBlock{{Language: "python", Content: "print(1)"}}

	blocks, err := p.ExtractCode("Here is the code: ```python\nprint(1)\n```")
	require.NoError(t, err)
	assert.Equal(t, want, blocks)

	blocks, err = p.ExtractCode("```python\nprint(1)\n```extra text")
	require.NoError(t, err)
	assert.Equal(t, want, blocks)

	blocks, err = p.ExtractCode("See: ```python\nprint(1)")
	require.NoError(t, err)
	assert.Empty(t, blocks)

	// JSON falls back to the same fence scan for non-JSON replies.
	blocks, err = (&JSONParser{}).ExtractCode("Here is the code: ```python\nprint(1)\n```")
	require.NoError(t, err)
	assert.Equal(t, want, blocks)
}

func TestMarkdownParser_ParseResponseNormalizesFences(t *testing.T) {
	p := &MarkdownParser{}
	out, err := p.ParseResponse("Try this:```python\nprint(1)\n```and done")
	require.NoError(t, err)
	assert.Equal(t, "Try this:\n```python\nprint(1)\n```\nand done", out)

	plain := "no code here"
	out, _ = p.ParseResponse(plain)
	assert.Equal(t, plain, out)
}

func TestMarkdownParser_FormatMessage(t *testing.T) {
	p := &MarkdownParser{DefaultLanguage: "go"}
	out := p.FormatMessage("```\nx := 1\n```\n```python\ny = 2\n```")
	assert.Equal(t, "```go\nx := 1\n```\n```python\ny = 2\n```", out)
}

func TestJSONParser_ExtractCode(t *testing.T) {
	p := &JSONParser{}

	blocks, err := p.ExtractCode(`{"code": {"language": "python", "content": "print(1)"}}`)
	require.NoError(t, err)
	assert.Equal(t, []CodeBlock{{Language: "python", Content: "print(1)"}}, blocks)

	blocks, err = p.ExtractCode(`{"data": "not code"}`)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestJSONParser_ExtractNested(t *testing.T) {
	p := &JSONParser{}
	blocks, err := p.ExtractCode(`{
		"functions": {
			"main": {"language": "python", "content": "def main():\n    pass"},
			"helper": {"language": "python", "content": "def helper():\n    pass"}
		},
		"steps": [
			{"script": "make build"},
			{"language": "go", "implementation": "func f() {}"}
		]
	}`)
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.True(t, strings.HasPrefix(blocks[0].Content, "def main"))
	assert.True(t, strings.HasPrefix(blocks[1].Content, "def helper"))
	assert.Equal(t, CodeBlock{Language: "shell", Content: "make build"}, blocks[2])
	assert.Equal(t, CodeBlock{Language: "go", Content: "func f() {}"}, blocks[3])
}

func TestJSONParser_ExtractFromFencedJSON(t *testing.T) {
	p := &JSONParser{}
	blocks, err := p.ExtractCode("Result:\n```json\n{\"code\": \"SELECT 1\", \"language\": \"sql\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, []CodeBlock{{Language: "sql", Content: "SELECT 1"}}, blocks)
}

func TestJSONParser_MissingFields(t *testing.T) {
	p := &JSONParser{}
	blocks, err := p.ExtractCode(`{"code": {"language": "python"}}`)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestJSONParser_ParseResponse(t *testing.T) {
	p := &JSONParser{}

	out, err := p.ParseResponse(`{"b":1,"a":[true,null]}`)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": [\n    true,\n    null\n  ]\n}", out)

	out, err = p.ParseResponse("Sure:\n```json\n{\"x\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"x\": 1\n}", out)
}

func TestJSONParser_LenientVersusStrict(t *testing.T) {
	bad := `{"code": invalid json`

	out, err := (&JSONParser{}).ParseResponse(bad)
	require.NoError(t, err)
	assert.Equal(t, bad, out)

	_, err = (&JSONParser{Strict: true}).ParseResponse(bad)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "json", pe.Format)
}

func TestJSONParser_FormatMessage(t *testing.T) {
	p := &JSONParser{}
	assert.Equal(t, `{"a":1}`, p.FormatMessage(`{"a":1}`))
	assert.Equal(t, "{\n  \"message\": \"a <b> c\"\n}", p.FormatMessage("a <b> c"))
}

func TestXMLParser_ParseResponse(t *testing.T) {
	p := &XMLParser{}

	out, err := p.ParseResponse("<root><item id=\"1\">one</item>\n\n<item>two</item></root>")
	require.NoError(t, err)
	assert.Equal(t, "<root>\n  <item id=\"1\">one</item>\n  <item>two</item>\n</root>", out)

	out, err = p.ParseResponse("Here:\n```xml\n<a><b>x</b></a>\n```")
	require.NoError(t, err)
	assert.Equal(t, "<a>\n  <b>x</b>\n</a>", out)

	out, err = p.ParseResponse("The answer is <result>42</result> as expected.")
	require.NoError(t, err)
	assert.Equal(t, "<result>42</result>", out)

	plain := "no xml at all, 1 < 2"
	out, err = p.ParseResponse(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestXMLParser_NamespacePrefixes(t *testing.T) {
	out, err := (&XMLParser{}).ParseResponse(`<s:doc xmlns:s="urn:x"><s:v>1</s:v></s:doc>`)
	require.NoError(t, err)
	assert.Equal(t, "<s:doc xmlns:s=\"urn:x\">\n  <s:v>1</s:v>\n</s:doc>", out)
}

func TestXMLParser_ExtractCode(t *testing.T) {
	p := &XMLParser{}

	blocks, err := p.ExtractCode(`<response>
  <explanation>Adds two numbers</explanation>
  <code language="python">def add(a, b):
    return a + b</code>
  <source>SELECT 1;</source>
</response>`)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, CodeBlock{Language: "python", Content: "def add(a, b):\n    return a + b"}, blocks[0])
	assert.Equal(t, CodeBlock{Language: "", Content: "SELECT 1;"}, blocks[1])
}

func TestXMLParser_ExtractMergesSources(t *testing.T) {
	p := &XMLParser{}
	text := "Config:\n```yaml\nkey: value\n```\nand inline <settings><debug>true</debug></settings> too."

	blocks, err := p.ExtractCode(text)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, CodeBlock{Language: "yaml", Content: "key: value"}, blocks[0])
	assert.Equal(t, CodeBlock{Language: "xml", Content: "<settings><debug>true</debug></settings>"}, blocks[1])
}

func TestXMLParser_FormatMessage(t *testing.T) {
	p := &XMLParser{}
	assert.Equal(t, "<a>1</a>", p.FormatMessage("<a>1</a>"))
	assert.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<message>1 &lt; 2</message>", p.FormatMessage("1 < 2"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"default", "json", "markdown", "xml"}, r.Keys())

	p, err := r.Get("MarkDown")
	require.NoError(t, err)
	assert.Equal(t, "markdown", p.Name())

	_, err = r.Get("yaml")
	var upe *UnsupportedParserError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "yaml", upe.Name)
	assert.Contains(t, upe.Error(), "default, json, markdown, xml")

	require.NoError(t, r.Register("strict-json", func() Parser { return &JSONParser{Strict: true} }))
	assert.Error(t, r.Register("json", func() Parser { return &JSONParser{} }))
	assert.Error(t, r.Register("", func() Parser { return &JSONParser{} }))

	p, err = r.Get("strict-json")
	require.NoError(t, err)
	_, err = p.ParseResponse("nope")
	assert.Error(t, err)
}
