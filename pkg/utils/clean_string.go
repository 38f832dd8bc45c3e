package utils

import "strings"

// CleanStringSlice trims every item and drops the empty ones, secrets mounted from files tend to end in a newline.
func CleanStringSlice(parts []string) []string {
	result := make([]string, 0)
	for _, item := range parts {
		if cleaned := strings.TrimSpace(item); cleaned != "" {
			result = append(result, cleaned)
		}
	}
	return result
}
