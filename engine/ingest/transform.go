package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcechat/sourcechat/engine/domain"
	"github.com/sourcechat/sourcechat/engine/fetch"
)

const (
	// ChunkSize is the number of characters per PDF chunk.
	ChunkSize = 1200
	// ChunkOverlap is how far each chunk reaches back into the previous
	// one, so nothing is lost at a chunk boundary.
	ChunkOverlap = 200
)

// Normalize converts fetched raw content into an ordered sequence of
// document units. Empty input yields an empty sequence, not an error.
func Normalize(res fetch.Result) []domain.DocumentUnit {
	if res.Pages != nil {
		return normalizePages(res.Pages)
	}
	return normalizeItems(res.Items)
}

// normalizeItems renders each API item as "key: value" lines. Keys are
// sorted lexicographically so the rendered text and hash are stable for
// the same item. The raw id is the item's own "id" field when present,
// else its position.
func normalizeItems(items []map[string]any) []domain.DocumentUnit {
	units := make([]domain.DocumentUnit, 0, len(items))
	for i, item := range items {
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+renderValue(item[k]))
		}

		rawID := strconv.Itoa(i)
		if id, ok := item["id"]; ok {
			rawID = renderValue(id)
		}

		units = append(units, domain.DocumentUnit{
			RawID: rawID,
			Text:  strings.Join(lines, "\n"),
			Hash:  hashItem(item),
		})
	}
	return units
}

// renderValue renders a JSON-decoded value for a "key: value" line.
// Nested objects and arrays become compact JSON.
func renderValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	case nil:
		return "null"
	default:
		b, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(b)
	}
}

// hashItem hashes the item serialized with sorted keys. json.Marshal
// already emits map keys in lexicographic order at every nesting level.
func hashItem(item map[string]any) string {
	b, err := json.Marshal(item)
	if err != nil {
		b = []byte(fmt.Sprint(item))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// normalizePages chunks each page's text into fixed-size overlapping
// slices. Pages with no extractable text are skipped; the chunk counter
// restarts at 1 per page.
func normalizePages(pages []fetch.Page) []domain.DocumentUnit {
	var units []domain.DocumentUnit
	for _, page := range pages {
		text := strings.Join(strings.Fields(page.Text), " ")
		if text == "" {
			continue
		}
		for k, chunk := range chunkText(text, ChunkSize, ChunkOverlap) {
			sum := sha256.Sum256([]byte(chunk))
			units = append(units, domain.DocumentUnit{
				RawID: fmt.Sprintf("page_%d_chunk_%d", page.Number, k+1),
				Text:  fmt.Sprintf("Page %d: %s", page.Number, chunk),
				Hash:  hex.EncodeToString(sum[:]),
				Page:  page.Number,
			})
		}
	}
	return units
}

// chunkText splits text into size-character chunks; each chunk after the
// first begins overlap characters before the previous chunk's end.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}
