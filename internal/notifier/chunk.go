package notifier

// DefaultChunkSize is the per-message content limit. It sits under common
// chat-platform caps with headroom for title and mentions on the first chunk.
const DefaultChunkSize = 1900

// emptyPlaceholder is sent instead of zero messages when content is empty.
const emptyPlaceholder = "no content found"

// Chunks splits content into ordered fixed-size slices; the last slice may be
// shorter. Concatenating the result reproduces content exactly. Empty content
// yields a single placeholder chunk.
//
// Slicing is by rune so a chunk never splits a UTF-8 sequence.
func Chunks(content string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if content == "" {
		return []string{emptyPlaceholder}
	}

	runes := []rune(content)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
