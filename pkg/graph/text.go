package graph

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

// tokenCounter returns a function counting tokens of s with the named
// encoding. When the encoding cannot be loaded (it is fetched on first use)
// it falls back to roughly four characters per token.
func tokenCounter(encoding string) func(string) int {
	encoderMu.Lock()
	defer encoderMu.Unlock()

	enc, ok := encoderCache[encoding]
	if !ok {
		var err error
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			logger.Debug("[Extract] Token encoder unavailable, approximating", "encoding", encoding, "err", err)
			enc = nil
		}
		encoderCache[encoding] = enc
	}
	if enc == nil {
		return approxTokens
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

func approxTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// truncateToTokens keeps whole sentences from the start of text while the
// total stays within maxTokens. A first sentence longer than the budget is
// cut by runes.
func truncateToTokens(text string, maxTokens int, count func(string) int) string {
	text = strings.TrimSpace(text)
	if text == "" || maxTokens <= 0 {
		return ""
	}
	if count(text) <= maxTokens {
		return text
	}

	var b strings.Builder
	used := 0
	for _, s := range splitIntoSentences(text) {
		n := count(s)
		if used+n > maxTokens {
			if b.Len() == 0 {
				runes := []rune(s)
				return string(runes[:min(len(runes), maxTokens*4)])
			}
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		used += n
	}
	return b.String()
}

// splitIntoSentences splits text on sentence punctuation and blank lines.
// Numbered list markers such as "1. " do not end a sentence.
func splitIntoSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		for _, part := range splitLineIntoSentences(trimmed) {
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(part)
			if endsSentence(part) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"')]}`)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

func splitLineIntoSentences(line string) []string {
	var (
		parts   []string
		current strings.Builder
	)
	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])
		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}
		j := i + 1
		for j < len(line) && strings.IndexByte(`.!?"')]}`, line[j]) >= 0 {
			current.WriteByte(line[j])
			j++
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
		i = j - 1
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}
