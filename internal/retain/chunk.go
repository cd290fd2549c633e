package retain

import "strings"

// chunkThreshold is the character length above which a fact's text is
// pre-chunked at Retain time rather than left for lazy chunking at first
// `expand` (§4, Chunking).
const chunkThreshold = 800

// splitChunks breaks text into contiguous pieces no longer than target,
// preferring to cut on a whitespace boundary. Adapted from
// rag/chunker.fixedChunk, simplified to the single fixed-size strategy this
// domain needs (memory unit text is prose, not markdown or code).
func splitChunks(text string, target int) []string {
	if target < 64 {
		target = 64
	}
	var out []string
	start := 0
	for start < len(text) {
		end := start + target
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > target/2 {
			end = start + i
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
		start = end
	}
	return out
}
