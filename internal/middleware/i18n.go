// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
)

// I18nMiddleware resolves the request language from the Accept-Language
// header and stores it in the context for handlers and services.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	supported := make(map[string]bool)
	for _, lang := range i18n.GetSupportedLanguages() {
		supported[lang] = true
	}

	return func(c *gin.Context) {
		lang := defaultLang

		header := c.GetHeader("Accept-Language")
		if header != "" {
			for _, part := range strings.Split(header, ",") {
				tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
				if tag == "" {
					continue
				}
				if supported[tag] {
					lang = tag
					break
				}
				// Match primary subtag, e.g. "zh-TW" -> "zh_TW"
				normalized := strings.ReplaceAll(tag, "-", "_")
				if supported[normalized] {
					lang = normalized
					break
				}
			}
		}

		c.Set("lang", lang)
		c.Next()
	}
}
