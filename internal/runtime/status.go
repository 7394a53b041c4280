package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/jsoncodec"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

// StatusPath is where the status API is mounted by default.
const StatusPath = "/api/status"

// Status is the JSON document served by the status API.
type Status struct {
	Running  bool             `json:"running"`
	Handlers []handlers.Entry `json:"handlers"`
	Stats    *observer.Stats  `json:"stats,omitempty"`
}

// Status returns the registered handlers and, when the observer keeps them,
// the running statistics.
func (p *Processor[S]) Status() Status {
	status := Status{
		Running:  p.running.Load(),
		Handlers: p.registry.Entries(),
	}
	if stats, ok := observer.StatsOf(p.observer.get()); ok {
		status.Stats = &stats
	}
	return status
}

// StatusSource is implemented by Processor for every state type.
type StatusSource interface {
	Status() Status
}

// StatusHandler serves the source's Status as JSON. Origins listed in
// allowedOrigins ("*" allows any) receive CORS headers.
func StatusHandler(source StatusSource, allowedOrigins []string, log logging.ServiceLogger) http.Handler {
	if log == nil {
		log = logging.Discard()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := allowedCORSOrigin(allowedOrigins, r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := jsoncodec.Marshal(source.Status())
		if err != nil {
			log.Error("Failed to encode status", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}

func allowedCORSOrigin(allowed []string, requestOrigin string) string {
	for _, candidate := range allowed {
		if candidate == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(candidate, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
