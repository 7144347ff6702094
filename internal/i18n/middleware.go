package i18n

import "net/http"

// Middleware picks a localizer from the Accept-Language header (falling back to
// the catalog default) and injects it into every request context.
func (c *Catalog) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var loc *Localizer
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = c.Localizer(accept)
			} else {
				loc = c.Default()
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
