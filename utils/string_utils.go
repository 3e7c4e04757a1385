package utils

import "strings"

// Title turns a snake_case identifier into words with leading capitals ("avg_ticket" -> "Avg Ticket").
func Title(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
