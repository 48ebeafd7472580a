// internal/middleware/i18n_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/escrowflow-backend/internal/i18n"
)

func langFor(t *testing.T, header string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	require.NoError(t, i18n.Initialize("../i18n/locales"))

	var got string
	r := gin.New()
	r.Use(I18nMiddleware("en"))
	r.GET("/", func(c *gin.Context) {
		got = c.GetString("lang")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Accept-Language", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return got
}

func TestI18nMiddlewareDefault(t *testing.T) {
	assert.Equal(t, "en", langFor(t, ""))
}

func TestI18nMiddlewarePicksSupportedLanguage(t *testing.T) {
	assert.Equal(t, "zh_TW", langFor(t, "zh_TW"))
}

func TestI18nMiddlewareNormalizesRegionTags(t *testing.T) {
	assert.Equal(t, "zh_TW", langFor(t, "zh-TW,zh;q=0.9,en;q=0.8"))
}

func TestI18nMiddlewareStripsQualityValues(t *testing.T) {
	assert.Equal(t, "en", langFor(t, "en-US;q=0.9, en;q=0.8"))
}

func TestI18nMiddlewareUnknownLanguageFallsBack(t *testing.T) {
	assert.Equal(t, "en", langFor(t, "fr-FR,fr;q=0.9"))
}
