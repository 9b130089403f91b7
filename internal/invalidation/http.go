package invalidation

import (
	"encoding/json"
	"net/http"

	"github.com/yanizio/civitas/internal/httperr"
)

// Handler accepts POST {"kind": "...", "city_id": N} from admin tooling
// and publishes it on bus.
func Handler(bus Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&e); err != nil {
			httperr.Write(w, http.StatusBadRequest, httperr.ValidationFailed)
			return
		}
		if err := e.Validate(); err != nil {
			httperr.WriteBody(w, http.StatusUnprocessableEntity, httperr.Body{
				Error: httperr.ValidationFailed, Fields: err.Error(),
			})
			return
		}
		if err := bus.Publish(r.Context(), e); err != nil {
			httperr.Write(w, http.StatusServiceUnavailable, httperr.Internal)
			return
		}
		httperr.JSON(w, http.StatusAccepted, map[string]any{"success": true, "event": e})
	}
}
