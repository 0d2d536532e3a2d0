package guard

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Guard lifecycle event names.
const (
	EventAuthenticated  = "authenticated"
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"
)

// Event is a guard lifecycle notification. Credentials never contain
// passwords.
type Event struct {
	Name        string
	User        User
	Credentials map[string]string
	Remember    bool
}

// Listener receives guard events.
type Listener func(ctx context.Context, e Event)

// Dispatcher fans guard events out to registered listeners, synchronously
// and best-effort: a panicking listener is logged and skipped, it never
// breaks the authentication flow.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *logrus.Logger
}

// NewDispatcher creates a dispatcher. A nil logger uses the default.
func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers a listener for all guard events.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

func (d *Dispatcher) dispatch(ctx context.Context, e Event) {
	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.WithFields(logrus.Fields{
						"event": e.Name,
						"panic": r,
					}).Error("guard event listener panicked")
				}
			}()
			l(ctx, e)
		}()
	}
}

// scrubCredentials copies the credential map without its secrets.
func scrubCredentials(credentials map[string]string) map[string]string {
	scrubbed := make(map[string]string, len(credentials))
	for key, value := range credentials {
		switch key {
		case "password", "password_confirmation":
			continue
		}
		scrubbed[key] = value
	}
	return scrubbed
}
