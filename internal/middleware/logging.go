package middleware

import (
	"io"
	"log"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// sensitiveParams are query params replaced before a request line is logged.
var sensitiveParams = []string{"password", "access_token"}

const redacted = "REDACTED"

// AccessLog is chi's request logger writing to out, with credentials in the
// query string masked.
func AccessLog(out io.Writer) func(http.Handler) http.Handler {
	return chiMiddleware.RequestLogger(&redactingFormatter{
		next: &chiMiddleware.DefaultLogFormatter{Logger: log.New(out, "", log.LstdFlags), NoColor: true},
	})
}

type redactingFormatter struct {
	next chiMiddleware.LogFormatter
}

func (f *redactingFormatter) NewLogEntry(r *http.Request) chiMiddleware.LogEntry {
	return f.next.NewLogEntry(redactRequest(r))
}

// redactRequest returns r, or a shallow copy whose URL hides sensitive params.
func redactRequest(r *http.Request) *http.Request {
	if r.URL.RawQuery == "" {
		return r
	}
	q := r.URL.Query()
	changed := false
	for _, name := range sensitiveParams {
		if q.Has(name) {
			q.Set(name, redacted)
			changed = true
		}
	}
	if !changed {
		return r
	}

	u := *r.URL
	u.RawQuery = q.Encode()
	rc := r.WithContext(r.Context())
	rc.URL = &u
	rc.RequestURI = u.RequestURI()
	return rc
}
