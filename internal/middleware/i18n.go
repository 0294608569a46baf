package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// HeaderLocale lets clients pin the response locale.
const HeaderLocale = "X-Locale"

type localeKey struct{}
type countryKey struct{}

// SupportedLocales lists the message catalogs the API can answer in. The
// first entry is the fallback.
var SupportedLocales = []language.Tag{language.English, language.Korean}

var localeMatcher = language.NewMatcher(SupportedLocales)

// Edge proxies that report the client country, in precedence order.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the negotiated locale and the best-effort client country in the request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := WithLocale(r.Context(), locale)
			if country != "" {
				ctx = context.WithValue(ctx, countryKey{}, country)
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLocale overrides the locale stored in ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the negotiated locale, "en" when none was stored.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok && v != "" {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(countryKey{}).(string)
	return v
}

func detectLocale(r *http.Request, fallback string, country string) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderLocale)); v != "" {
		return matchLocale(v)
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		_, idx, _ := localeMatcher.Match(tags...)
		return localeName(idx)
	}
	if country == "KR" {
		return "ko"
	}
	if country == "" && fallback != "" {
		return matchLocale(fallback)
	}
	return "en"
}

// matchLocale maps any BCP 47 tag to a supported locale name.
func matchLocale(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "en"
	}
	_, idx, _ := localeMatcher.Match(tag)
	return localeName(idx)
}

func localeName(idx int) string {
	base, _ := SupportedLocales[idx].Base()
	return base.String()
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// applied upstream by TrustedProxies, not here.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// ResolveCountry resolves a best-effort ISO country code for the given request.
// Edge headers win when the request came through a trusted proxy, then the
// region of the requested locale, then GeoIP.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	if FromTrustedProxy(r.Context()) {
		for _, key := range countryHeaders {
			if code := normalizeCountry(r.Header.Get(key)); code != "" {
				return code
			}
		}
	}
	for _, accept := range []string{r.Header.Get(HeaderLocale), r.Header.Get("Accept-Language")} {
		if region := localeRegion(accept); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return normalizeCountry(country)
}

// normalizeCountry upper-cases a two-letter code and drops the placeholders
// edge proxies send for unknown origins (XX, T1).
func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return ""
		}
	}
	return code
}

// localeRegion returns the explicit region subtag of the first language in accept.
func localeRegion(accept string) string {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return ""
	}
	region, confidence := tags[0].Region()
	if confidence != language.Exact {
		return ""
	}
	return region.String()
}
