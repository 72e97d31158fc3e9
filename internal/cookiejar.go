package internal

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// SessionCookiesKey is the storage key of the persisted session cookies
const SessionCookiesKey = "session_cookies"

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c storedCookie) id() string {
	return c.Name + ";" + c.Domain + ";" + c.Path
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// PersistentJar is an http.CookieJar that mirrors the API host's cookies
// into a KVStore, so the refresh cookie survives between runs. Cookies are
// kept with their attributes and restored at the path the server gave them.
type PersistentJar struct {
	mu    sync.Mutex
	jar   *cookiejar.Jar
	store KVStore
	base  *url.URL
	saved map[string]storedCookie
	nowFn func() time.Time
}

// NewPersistentJar creates a jar for the API at baseURL and loads any
// previously stored cookies.
func NewPersistentJar(store KVStore, baseURL string) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ParseError{Source: "config", Key: "api_base_url", Err: err}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	pj := &PersistentJar{
		jar:   jar,
		store: store,
		base:  base,
		saved: make(map[string]storedCookie),
		nowFn: time.Now,
	}
	pj.load()
	return pj, nil
}

func (p *PersistentJar) load() {
	raw, ok, err := p.store.Get(SessionCookiesKey)
	if err != nil || !ok {
		return
	}
	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		LogWarn("Discarding unreadable session cookies: %v", &ParseError{Source: "cookies", Key: SessionCookiesKey, Err: err})
		return
	}

	now := p.nowFn()
	origin := &url.URL{Scheme: p.base.Scheme, Host: p.base.Host, Path: "/"}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Path == "" {
			c.Path = "/"
		}
		if c.expired(now) {
			continue
		}
		p.saved[c.id()] = c
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	p.jar.SetCookies(origin, cookies)
}

// SetCookies implements http.CookieJar
func (p *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jar.SetCookies(u, cookies)
	if u.Host != p.base.Host {
		return
	}

	now := p.nowFn()
	for _, c := range cookies {
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if sc.Path == "" || sc.Path[0] != '/' {
			sc.Path = defaultCookiePath(u.Path)
		}
		switch {
		case c.MaxAge < 0:
			sc.Expires = now
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		default:
			sc.Expires = c.Expires
		}

		if sc.expired(now) {
			delete(p.saved, sc.id())
			continue
		}
		p.saved[sc.id()] = sc
	}
	p.persist(now)
}

// Cookies implements http.CookieJar
func (p *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return p.jar.Cookies(u)
}

func (p *PersistentJar) persist(now time.Time) {
	stored := make([]storedCookie, 0, len(p.saved))
	for id, c := range p.saved {
		if c.expired(now) {
			delete(p.saved, id)
			continue
		}
		stored = append(stored, c)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].id() < stored[j].id() })

	data, err := json.Marshal(stored)
	if err != nil {
		return
	}
	if err := p.store.Set(SessionCookiesKey, string(data)); err != nil {
		LogWarn("Failed to persist session cookies: %v", err)
	}
}

// defaultCookiePath is the path a cookie without a Path attribute gets,
// the directory of the request path.
func defaultCookiePath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(requestPath, "/")
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}
