package i18n

import (
	"net/http"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// LangCookie remembers an explicit language choice made with ?lang=.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. The language
// comes from ?lang=, then the lang cookie, then Accept-Language, falling
// back to the default language given to Init.
func Middleware() func(http.Handler) http.Handler {
	var mu sync.Mutex
	localizers := make(map[string]*i18n.Localizer)
	localizerFor := func(lang string) *i18n.Localizer {
		mu.Lock()
		defer mu.Unlock()
		loc, ok := localizers[lang]
		if !ok {
			loc = NewLocalizer(lang)
			localizers[lang] = loc
		}
		return loc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieLang string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookieLang = c.Value
			}
			lang := Match(r.URL.Query().Get("lang"), cookieLang, r.Header.Get("Accept-Language"))
			if q := r.URL.Query().Get("lang"); q != "" && lang != cookieLang {
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithLocalizer(r.Context(), localizerFor(lang))
			ctx = WithLang(ctx, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
