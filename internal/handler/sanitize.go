package handler

import (
	"strings"
	"unicode/utf8"
)

var crlf = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// stripCRLF flattens line breaks so a value is safe in a single header line.
func stripCRLF(s string) string {
	return strings.TrimSpace(crlf.Replace(s))
}

// clamp cuts s to at most n runes.
func clamp(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
