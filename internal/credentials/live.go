package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Change is a live cookie store change notification.
type Change struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	Value   string `json:"value"`
	Removed bool   `json:"removed"`
}

// Navigation is a completed page navigation in the browser.
type Navigation struct {
	URL string `json:"url"`
	// FrameID is 0 for the top level frame.
	FrameID int `json:"frame_id"`
}

// LiveStore is the browser's live cookie store, it is the authoritative copy of every credential.
//
// note: fault injection point
type LiveStore interface {
	// Get returns the value of the cookie called name that would be sent to originURL.
	Get(ctx context.Context, originURL, name string) (value string, found bool, err error)
}

// Events is implemented by live stores that can notify about changes.
type Events interface {
	Changes() <-chan Change
	Navigations() <-chan Navigation
}

func hostOf(originURL string) (string, error) {
	parsed, err := url.Parse(originURL)
	if err != nil {
		return "", err
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("origin %q has no host", originURL)
	}
	return parsed.Hostname(), nil
}

// domainMatches reports whether a cookie set for domain is sent to host.
func domainMatches(domain, host string) bool {
	domain = strings.ToLower(domain)
	host = strings.ToLower(host)
	return domain == host || domain == "."+host
}

type cookieKey struct {
	domain string
	name   string
}

// BridgeStore is an in-memory LiveStore fed by a companion browser extension
// through Handler. Every accepted change is also published on Changes.
type BridgeStore struct {
	mu          sync.RWMutex
	cookies     map[cookieKey]string
	changes     chan Change
	navigations chan Navigation
}

func NewBridgeStore() *BridgeStore {
	return &BridgeStore{
		cookies:     make(map[cookieKey]string),
		changes:     make(chan Change, 64),
		navigations: make(chan Navigation, 16),
	}
}

func (b *BridgeStore) Get(_ context.Context, originURL, name string) (string, bool, error) {
	host, err := hostOf(originURL)
	if err != nil {
		return "", false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for key, value := range b.cookies {
		if key.name == name && domainMatches(key.domain, host) {
			return value, true, nil
		}
	}
	return "", false, nil
}

// Apply updates the store and publishes the change. When the notification
// buffer is full the notification is dropped, the store itself is still updated.
func (b *BridgeStore) Apply(change Change) {
	key := cookieKey{domain: strings.ToLower(change.Domain), name: change.Name}

	b.mu.Lock()
	if change.Removed || change.Value == "" {
		delete(b.cookies, key)
	} else {
		b.cookies[key] = change.Value
	}
	b.mu.Unlock()

	select {
	case b.changes <- change:
	default:
	}
}

func (b *BridgeStore) Navigate(nav Navigation) {
	select {
	case b.navigations <- nav:
	default:
	}
}

func (b *BridgeStore) Changes() <-chan Change {
	return b.changes
}

func (b *BridgeStore) Navigations() <-chan Navigation {
	return b.navigations
}

// Handler serves the endpoints the companion extension posts to:
//
//	POST /cookies     a single Change or a list of them
//	POST /navigation  a Navigation
func (b *BridgeStore) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cookies", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var raw json.RawMessage
		err := json.NewDecoder(r.Body).Decode(&raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var changes []Change
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			err = json.Unmarshal(raw, &changes)
		} else {
			var single Change
			err = json.Unmarshal(raw, &single)
			changes = []Change{single}
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, c := range changes {
			if c.Name == "" || c.Domain == "" {
				http.Error(w, "cookie change requires name and domain", http.StatusBadRequest)
				return
			}
		}
		for _, c := range changes {
			b.Apply(c)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/navigation", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var nav Navigation
		err := json.NewDecoder(r.Body).Decode(&nav)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.Navigate(nav)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// FileStore is a LiveStore reading a cookie export (a json list of
// {"name", "domain", "value"} objects, as written by most cookie export extensions).
// The file is re-read on every Get, a missing file means no cookies.
type FileStore struct {
	Path string
}

type exportedCookie struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Value  string `json:"value"`
}

func (f FileStore) Get(_ context.Context, originURL, name string) (string, bool, error) {
	host, err := hostOf(originURL)
	if err != nil {
		return "", false, err
	}

	contents, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var cookies []exportedCookie
	err = json.Unmarshal(contents, &cookies)
	if err != nil {
		return "", false, fmt.Errorf("parse cookie export %s: %w", f.Path, err)
	}
	for _, c := range cookies {
		if c.Name == name && domainMatches(c.Domain, host) && c.Value != "" {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}
