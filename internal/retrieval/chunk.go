package retrieval

import "strings"

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 800

// SplitChunks splits text into chunks of at most size bytes, breaking on word
// boundaries. A single word longer than size is cut into size-byte pieces
// on rune boundaries.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, w := range strings.Fields(text) {
		for len(w) > size {
			flush()
			cut := runeCut(w, size)
			chunks = append(chunks, w[:cut])
			w = w[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	flush()
	return chunks
}

// runeCut returns the largest index <= n that does not split a UTF-8 sequence.
func runeCut(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	if n == 0 {
		return len(s)
	}
	return n
}
