package session

import (
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/pitlane-app/pitlane/internal/pkg/cache"
)

// Sessions are issued by the Pitlane web app at login; this service only
// reads them from the shared Redis store.
var sessionStore *session.Store

func NewSessionStore() *session.Store {
	sessionStore = session.New(session.Config{
		Storage:        cache.NewStorage(cache.DatabaseSessions),
		CookieHTTPOnly: true,
		Expiration:     time.Hour * 1,
		KeyLookup:      "cookie:session_id",
	})

	return sessionStore
}

// SetSessionStore replaces the store, e.g. with a memory-backed one in tests.
func SetSessionStore(store *session.Store) {
	sessionStore = store
}

func GetSessionStore() *session.Store {
	return sessionStore
}
