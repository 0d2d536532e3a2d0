package client

import (
	"net/http"
	"net/url"
)

// AttachHandler sends the browser through the server attach endpoint so the
// scope's token becomes a server-side session. The destination to come back
// to is taken from the return_url query parameter, then the Referer, then
// the fallback.
//
// Mount it behind whatever middleware establishes the per-browser Scope.
func (c *Client) AttachHandler(fallback string) http.Handler {
	if fallback == "" {
		fallback = "/"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := c.EnsureToken(r.Context())
		if err != nil {
			c.logger.WithError(err).Error("failed to mint attach token")
			http.Error(w, "attach failed", http.StatusInternalServerError)
			return
		}

		returnURL := r.URL.Query().Get("return_url")
		if returnURL == "" {
			returnURL = r.Referer()
		}
		if returnURL == "" {
			returnURL = fallback
		}

		// Pass the remaining query through so callers can thread state
		// across the round trip.
		extra := url.Values{"return_url": {returnURL}}
		for key, values := range r.URL.Query() {
			switch key {
			case "return_url", "broker", "token", "checksum":
				continue
			}
			extra[key] = values
		}

		http.Redirect(w, r, c.AttachURL(token, extra), http.StatusFound)
	})
}
