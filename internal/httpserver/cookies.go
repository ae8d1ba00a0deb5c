package httpserver

import (
	"net/http"
	"time"
)

const (
	cookieUserID        = "user_id"
	cookieRememberToken = "remember_token"
)

type cookieSettings struct {
	maxAge time.Duration
	secure bool
}

func (c cookieSettings) setRemember(w http.ResponseWriter, userID, token string) {
	for name, value := range map[string]string{cookieUserID: userID, cookieRememberToken: token} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   int(c.maxAge.Seconds()),
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (c cookieSettings) clearRemember(w http.ResponseWriter) {
	for _, name := range []string{cookieUserID, cookieRememberToken} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
