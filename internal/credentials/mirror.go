// Package credentials mirrors the marketplace session cookie and device id from the
// browser's live cookie store into the durable store.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"buffcart/internal/components/assert"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/kvstore"
)

const (
	report_mirror_read_live  = "mirror.read-live"
	report_mirror_reconcile  = "mirror.reconcile"
	report_mirror_aggressive = "mirror.aggressive-reconcile"
	report_mirror_listen     = "mirror.listen"
)

const (
	SessionCookie  = "session"
	DeviceIDCookie = "Device-Id"
)

// durable store keys
const (
	SessionKey  = "buffSessionCookie"
	DeviceIDKey = "buffDeviceId"
)

func storageKey(cookieName string) string {
	if cookieName == SessionCookie {
		return SessionKey
	}
	return DeviceIDKey
}

// Credential is the durable copy of the tracked cookies, empty means absent.
type Credential struct {
	Token    string
	DeviceID string
}

func (c Credential) HasToken() bool {
	return c.Token != ""
}

type MirrorOptions struct {
	// Origin is the url whose cookies are mirrored.
	Origin string
	// StartupAttempts is how many times the session cookie is read on startup before accepting absence.
	StartupAttempts int
	StartupDelay    time.Duration
	// NavigationSettle is how long to wait after a navigation before reconciling,
	// so the site can finish setting its cookies.
	NavigationSettle time.Duration
}

func DefaultMirrorOptions() MirrorOptions {
	return MirrorOptions{
		Origin:           "https://buff.163.com",
		StartupAttempts:  3,
		StartupDelay:     time.Second,
		NavigationSettle: time.Second,
	}
}

type Mirror struct {
	live    LiveStore
	durable kvstore.Store
	clock   chrono.API
	tel     telemetry.API
	opts    MirrorOptions
	host    string
}

func NewMirror(live LiveStore, durable kvstore.Store, clock chrono.API, tel telemetry.API, opts MirrorOptions) (*Mirror, error) {
	assert.NotNil(live)
	assert.NotNil(durable)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.Positive(opts.StartupAttempts)

	host, err := hostOf(opts.Origin)
	if err != nil {
		return nil, err
	}

	return &Mirror{
		live:    live,
		durable: durable,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("credentials", tel),
		opts:    opts,
		host:    host,
	}, nil
}

// ReadLive reads one cookie from the live store, any fault is reported and treated as absent.
func (m *Mirror) ReadLive(ctx context.Context, name string) (string, bool) {
	value, found, err := m.live.Get(ctx, m.opts.Origin, name)
	if err != nil {
		m.tel.ReportWarning(report_mirror_read_live, fmt.Errorf("read %s: %w", name, err))
		return "", false
	}
	if !found || value == "" {
		return "", false
	}
	return value, true
}

func (m *Mirror) store(ctx context.Context, name, value string, present bool) error {
	key := storageKey(name)
	if present {
		return m.durable.Set(ctx, map[string][]byte{key: []byte(value)})
	}
	return m.durable.Remove(ctx, key)
}

// Reconcile copies every tracked cookie from the live store, cookies absent
// from the live store are removed from the durable store.
func (m *Mirror) Reconcile(ctx context.Context) error {
	for _, name := range []string{SessionCookie, DeviceIDCookie} {
		value, present := m.ReadLive(ctx, name)
		err := m.store(ctx, name, value, present)
		if err != nil {
			m.tel.ReportBroken(report_mirror_reconcile, err, name)
			return fmt.Errorf("reconcile %s: %w", name, err)
		}
	}
	return nil
}

// AggressiveReconcile is run on process start, the live store may not be populated yet
// so the session cookie is read up to StartupAttempts times before absence is accepted.
// The device id is read once.
func (m *Mirror) AggressiveReconcile(ctx context.Context) error {
	var session string
	var present bool
	for attempt := 1; attempt <= m.opts.StartupAttempts; attempt++ {
		session, present = m.ReadLive(ctx, SessionCookie)
		if present {
			break
		}
		if attempt < m.opts.StartupAttempts {
			err := m.clock.Sleep(ctx, m.opts.StartupDelay)
			if err != nil {
				return err
			}
		}
	}
	if !present {
		m.tel.ReportWarning(report_mirror_aggressive, "session cookie absent after startup attempts", m.opts.StartupAttempts)
	}

	err := m.store(ctx, SessionCookie, session, present)
	if err != nil {
		m.tel.ReportBroken(report_mirror_aggressive, err, SessionCookie)
		return fmt.Errorf("reconcile %s: %w", SessionCookie, err)
	}

	deviceID, present := m.ReadLive(ctx, DeviceIDCookie)
	err = m.store(ctx, DeviceIDCookie, deviceID, present)
	if err != nil {
		m.tel.ReportBroken(report_mirror_aggressive, err, DeviceIDCookie)
		return fmt.Errorf("reconcile %s: %w", DeviceIDCookie, err)
	}
	return nil
}

// Current returns the durable copy of the credential.
func (m *Mirror) Current(ctx context.Context) (Credential, error) {
	values, err := m.durable.Get(ctx, SessionKey, DeviceIDKey)
	if err != nil {
		return Credential{}, fmt.Errorf("read credential: %w", err)
	}
	return Credential{
		Token:    string(values[SessionKey]),
		DeviceID: string(values[DeviceIDKey]),
	}, nil
}

// ClearSession removes the durable session cookie, the live store is untouched.
func (m *Mirror) ClearSession(ctx context.Context) error {
	return m.durable.Remove(ctx, SessionKey)
}

// ForceRefresh reconciles and returns what was stored.
func (m *Mirror) ForceRefresh(ctx context.Context) (Credential, error) {
	err := m.Reconcile(ctx)
	if err != nil {
		return Credential{}, err
	}
	return m.Current(ctx)
}

func (m *Mirror) tracked(change Change) bool {
	if change.Name != SessionCookie && change.Name != DeviceIDCookie {
		return false
	}
	return domainMatches(change.Domain, m.host)
}

func (m *Mirror) isTargetNavigation(nav Navigation) bool {
	return nav.FrameID == 0 && strings.HasPrefix(nav.URL, m.opts.Origin)
}

// Run listens to live store events until ctx is done, reconciling on every
// tracked cookie change and NavigationSettle after every top level navigation on the origin.
func (m *Mirror) Run(ctx context.Context, events Events) {
	wg := sync.WaitGroup{}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-events.Changes():
			if !m.tracked(change) {
				continue
			}
			m.tel.ReportDebug("cookie changed", change.Name, change.Removed)
			err := m.Reconcile(ctx)
			if err != nil {
				m.tel.ReportBroken(report_mirror_listen, err, "change", change.Name)
			}
		case nav := <-events.Navigations():
			if !m.isTargetNavigation(nav) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := m.clock.Sleep(ctx, m.opts.NavigationSettle)
				if err != nil {
					return
				}
				err = m.Reconcile(ctx)
				if err != nil {
					m.tel.ReportBroken(report_mirror_listen, err, "navigation", nav.URL)
				}
			}()
		}
	}
}
