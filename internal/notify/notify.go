// Package notify carries user facing messages out of the core: the persistent
// re-authentication banner and one-off warnings.
package notify

import (
	"sync"

	"buffcart/internal/components/telemetry"
)

const (
	report_notify_reauth = "notify.reauth"
	report_notify_warn   = "notify.warn"
)

// Notifier is the UI collaborator.
//
// note: fault injection point
type Notifier interface {
	// RequireReauth raises a persistent banner asking the user to log in again
	// and refresh credentials.
	RequireReauth(reason string)
	// Warn shows a one-off warning.
	Warn(message string)
}

// Banner is a Notifier that keeps the current banner until it is cleared, every
// message is also reported through telemetry.
type Banner struct {
	tel telemetry.API

	mu       sync.Mutex
	reason   string
	warnings []string
}

func NewBanner(tel telemetry.API) *Banner {
	return &Banner{tel: tel}
}

func (b *Banner) RequireReauth(reason string) {
	b.tel.ReportWarning(report_notify_reauth, reason)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.reason = reason
}

func (b *Banner) Warn(message string) {
	b.tel.ReportWarning(report_notify_warn, message)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, message)
}

// Reauth returns the reason of the active re-authentication banner, if any.
func (b *Banner) Reauth() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason, b.reason != ""
}

// Clear hides the re-authentication banner.
func (b *Banner) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reason = ""
}

// Warnings drains the warnings shown since the last call.
func (b *Banner) Warnings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.warnings
	b.warnings = nil
	return out
}
