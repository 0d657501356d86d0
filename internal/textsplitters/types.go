package textsplitters

import "strings"

// Unit selects whether a splitter's Size/Overlap are measured in characters
// or tokens.
type Unit int

const (
	UnitChars Unit = iota
	UnitTokens
)

// Tokenizer turns text into a countable sequence of tokens and back. Only
// needed when a BoundaryConfig's Unit is UnitTokens.
type Tokenizer interface {
	Tokenize(text string) []string
	Detokenize(tokens []string) string
}

// WhitespaceTokenizer is the zero-dependency default Tokenizer: it splits on
// runs of whitespace and rejoins with a single space.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string { return strings.Fields(text) }
func (WhitespaceTokenizer) Detokenize(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Splitter breaks text into ordered chunks under a target size.
type Splitter interface {
	Split(text string) []string
}

// Mode selects a boundary splitter's unit-of-grouping strategy.
type Mode string

const (
	ModeSentence  Mode = "sentence"
	ModeParagraph Mode = "paragraph"
	ModeHybrid    Mode = "hybrid"
)

// New builds a Splitter for the given mode.
func New(mode Mode, cfg BoundaryConfig) (Splitter, error) {
	switch mode {
	case ModeParagraph:
		return newParagraphSplitter(cfg)
	case ModeHybrid:
		return newHybridSplitter(cfg)
	default:
		return newSentenceSplitter(cfg)
	}
}

// NewRollingSentence builds a Splitter that produces overlapping N-sentence
// windows, advancing Step sentences at a time.
func NewRollingSentence(cfg RollingConfig) (Splitter, error) {
	return newRollingSentenceSplitter(cfg)
}
