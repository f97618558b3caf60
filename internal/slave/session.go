package slave

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/google/uuid"

	"github.com/projectpolygon/hypercube-go/internal/master"
)

// Session identifies this slave to the coordinator for the lifetime of one
// job: a random identifier presented as the `id` cookie on every request,
// per spec.md section 9's hardening note (a fixed-width UUID rather than an
// arbitrary worker-chosen string).
type Session struct {
	ID     string
	Client *http.Client
	Host   string
	Port   int
}

// NewSession generates a fresh session identifier and builds an HTTP client
// that carries it as a cookie on every request to host:port.
func NewSession(host string, port int) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	base, err := url.Parse(fmt.Sprintf("http://%s:%d/", host, port))
	if err != nil {
		return nil, fmt.Errorf("slave: parse master base url: %w", err)
	}
	jar.SetCookies(base, []*http.Cookie{
		{Name: master.SessionCookieName, Value: id, Path: "/"},
	})

	return &Session{
		ID:     id,
		Client: &http.Client{Jar: jar},
		Host:   host,
		Port:   port,
	}, nil
}

// BaseURL returns the coordinator's base URL (no trailing path).
func (s *Session) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

