package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func localeProbe(locale, country *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*locale = LocaleFromContext(r.Context())
		*country = CountryFromContext(r.Context())
	})
}

func TestI18NHeaderWins(t *testing.T) {
	var locale, country string
	handler := I18N("en", nil)(localeProbe(&locale, &country))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Locale", "zh-CN")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if locale != "zh" {
		t.Fatalf("locale mismatch: %q", locale)
	}
	if country != "CN" {
		t.Fatalf("country mismatch: %q", country)
	}
}

func TestI18NAcceptLanguage(t *testing.T) {
	var locale, country string
	handler := I18N("en", nil)(localeProbe(&locale, &country))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh;q=0.9, en;q=0.5")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if locale != "zh" {
		t.Fatalf("locale mismatch: %q", locale)
	}
}

func TestI18NGeoIPFallback(t *testing.T) {
	var locale, country string
	lookup := func(ip string) (string, error) { return "cn", nil }
	handler := I18N("", lookup)(localeProbe(&locale, &country))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:443"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if country != "CN" {
		t.Fatalf("country mismatch: %q", country)
	}
	if locale != "zh" {
		t.Fatalf("locale mismatch: %q", locale)
	}
}

func TestI18NDefaultLocale(t *testing.T) {
	var locale, country string
	handler := I18N("en", nil)(localeProbe(&locale, &country))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if locale != "en" {
		t.Fatalf("locale mismatch: %q", locale)
	}
	if country != "" {
		t.Fatalf("country must be empty, got %q", country)
	}
}
