package i18n

import "net/http"

// Middleware injects a translator into every request context. The "lang"
// query parameter wins over the Accept-Language header.
func Middleware(b *Bundle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := b.Translator(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
			ctx := WithTranslator(r.Context(), t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
