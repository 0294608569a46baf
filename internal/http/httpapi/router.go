package httpapi

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"dfund/internal/http/handlers"
	"dfund/internal/middleware"
)

// Options configures the cross-cutting middleware around the handlers.
type Options struct {
	Logger             zerolog.Logger
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string
	// DonationsPerMinute limits donation requests per caller. Zero disables the limit.
	DonationsPerMinute int
	CountryLookup      middleware.CountryLookup
	// TrustedProxies lists the peers whose forwarding and country headers are believed.
	TrustedProxies []netip.Prefix
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.TrustedProxies(opts.TrustedProxies),
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)

	auth := middleware.AuthJWT(opts.JWTSecret, opts.JWTIssuer)
	donationLimit := func(next http.Handler) http.Handler { return next }
	if opts.DonationsPerMinute > 0 {
		donationLimit = middleware.RateLimit(opts.DonationsPerMinute, time.Minute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)
		r.Get("/stats", app.StatsSummary)
		r.Get("/accounts/{account}/balance", app.AccountBalance)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", app.ProjectsList)
			r.Get("/count", app.ProjectsCount)
			r.Get("/top", app.ProjectsTop)
			r.With(auth).Post("/", app.ProjectsCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.ProjectsGet)
				r.Get("/balance", app.ProjectBalance)
				r.Get("/donations/total", app.DonationsTotal)
				r.Get("/contributions/{donor}", app.ContributionGet)
				r.Get("/ledger", app.LedgerList)
				r.Get("/reviews", app.ReviewsList)
				r.Get("/reviews/{reviewer}", app.ReviewsGet)

				r.Group(func(r chi.Router) {
					r.Use(auth)
					r.With(donationLimit).Post("/donations", app.DonationsCreate)
					r.Post("/finalize", app.Finalize)
					r.Post("/release", app.Release)
					r.Post("/refund", app.Refund)
					r.Post("/refund-claims", app.RefundClaim)
					r.Post("/review-window", app.ReviewWindowOpen)
					r.Post("/reviews", app.ReviewsCreate)
				})
			})
		})
	})

	return r
}
