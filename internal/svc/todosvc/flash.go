package todosvc

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/mkrupp/taskcase-michael/internal/domain"
)

// FlashCookieName is the name of the cookie carrying pending flash messages.
const FlashCookieName = "todosvc_flash"

// pushFlash appends a one-shot status message to the flash cookie.
// Messages already queued on the incoming request are preserved.
func pushFlash(w http.ResponseWriter, r *http.Request, level, text string) {
	flashes := append(readFlashes(r), domain.Flash{Level: level, Text: text})

	payload, err := json.Marshal(flashes)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes drains the flash queue: it returns all pending messages and
// clears the cookie so each message renders exactly once.
func popFlashes(w http.ResponseWriter, r *http.Request) []domain.Flash {
	flashes := readFlashes(r)
	if flashes == nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return flashes
}

func readFlashes(r *http.Request) []domain.Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}

	var flashes []domain.Flash
	if err := json.Unmarshal(payload, &flashes); err != nil {
		return nil
	}

	return flashes
}
