package segment

import "strings"

// SplitSentences splits text at whitespace that follows a sentence
// terminator (. ! ?). Terminators stay attached to their sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) && isSpace(text[i+1]) {
			sentences = append(sentences, text[start:i+1])
			i++
			for i < len(text) && isSpace(text[i]) {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ChunkText splits text into chunks of at most chunkSize characters,
// packing whole sentences greedily and carrying trailing sentences of up
// to overlap characters into the next chunk. A single sentence longer
// than chunkSize is force-split at the last space before the boundary;
// if that space falls before 80% of chunkSize, the split happens at the
// boundary itself.
func ChunkText(text string, chunkSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := SplitSentences(text)
	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		if currentLen+len(sentence)+len(current) <= chunkSize {
			current = append(current, sentence)
			currentLen += len(sentence) + 1
			continue
		}

		if len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))
		}

		// Carry trailing sentences into the next chunk as overlap.
		var carried []string
		carriedLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			s := current[i]
			if carriedLen+len(s)+1 > overlap {
				break
			}
			carried = append([]string{s}, carried...)
			carriedLen += len(s) + 1
		}

		current = append(carried, sentence)
		currentLen = 0
		for _, s := range current {
			currentLen += len(s) + 1
		}

		for currentLen > chunkSize && len(current) == 1 {
			split := strings.LastIndex(sentence[:chunkSize], " ")
			if split == -1 || split < chunkSize*8/10 {
				split = chunkSize
			}
			chunks = append(chunks, strings.TrimSpace(sentence[:split]))
			sentence = strings.TrimSpace(sentence[split:])
			current = []string{sentence}
			currentLen = len(sentence)
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
