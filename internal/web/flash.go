package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "wiki_flash"

// Flash levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Message is a transient status message shown once.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// setFlash queues msgs for the next rendered page. Messages ride in a
// short-lived cookie so handlers stay stateless across the redirect.
func setFlash(w http.ResponseWriter, msgs ...Message) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns queued messages and clears the cookie.
func popFlash(w http.ResponseWriter, r *http.Request) []Message {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}
