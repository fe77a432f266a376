// internal/service/template_service.go
package service

import (
	"strings"
)

// RenderTemplate substitutes {placeholder} tokens with merge-field values.
// Unknown placeholders are left in place; empty values render as <unknown>
// so a half-filled profile is visible in previews instead of silently blank.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
