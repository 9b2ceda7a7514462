package parser

// DefaultParser passes responses through untouched.
type DefaultParser struct{}

func (p *DefaultParser) Name() string {
	return DefaultKey
}

func (p *DefaultParser) ParseResponse(text string) (string, error) {
	return text, nil
}

func (p *DefaultParser) ExtractCode(text string) ([]CodeBlock, error) {
	return nil, ErrUnsupportedOperation
}
