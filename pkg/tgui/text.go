package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes is Telegram's hard limit for a single text message.
const MaxMessageRunes = 4096

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// Split cuts text into chunks of at most limit runes, preferring newline
// boundaries in the last two thirds of each window. A hard cut never lands
// inside a tag or an entity. limit <= 0 means MaxMessageRunes.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var out []string
	start := 0 // byte index
	for start < len(text) {
		runes := 0
		end := start
		lastNL := -1 // byte index after the last newline in this window
		lastNLRunes := 0
		for end < len(text) && runes < limit {
			r, size := utf8.DecodeRuneInString(text[end:])
			if r == '\n' {
				lastNL = end + size
				lastNLRunes = runes + 1
			}
			runes++
			end += size
		}
		if end < len(text) {
			if lastNL != -1 && lastNLRunes >= limit/3 {
				end = lastNL
			} else if cut := openMarkup(text[start:end]); cut > 0 {
				end = start + cut
			}
		}
		if chunk := strings.TrimRight(text[start:end], "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(text) && text[start] == '\n' {
			start++
		}
	}
	return out
}

// openMarkup returns the byte offset of the earliest tag or entity left open
// at the end of w, or -1.
func openMarkup(w string) int {
	cut := -1
	if i := strings.LastIndexByte(w, '<'); i > strings.LastIndexByte(w, '>') {
		cut = i
	}
	if i := strings.LastIndexByte(w, '&'); i > strings.LastIndexByte(w, ';') && (cut == -1 || i < cut) {
		cut = i
	}
	return cut
}
