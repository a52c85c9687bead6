package fetch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrTransient marks failures that may resolve on retry: connection failures and
	// non-2xx responses that are not a login or challenge page.
	ErrTransient = errors.New("network response was not ok")
	// ErrMalformedResponse marks a 2xx response whose body is not json.
	ErrMalformedResponse = errors.New("response body is not valid json")
	// ErrAuthenticationRequired marks a response that is the marketplace login page.
	ErrAuthenticationRequired = errors.New("login required")
	// ErrChallengeDetected marks a response that is an anti-crawler or captcha page.
	ErrChallengeDetected = errors.New("anti-crawler/captcha page detected")
)

var loginSignatures = []string{
	"login",
	"buff.163.com/account/login",
}

var challengeSignatures = []string{
	"anti-crawler",
	"captcha",
}

// IsTerminal reports whether err must never be retried automatically.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired) || errors.Is(err, ErrChallengeDetected)
}

// ResponseError is returned when a response was received but could not be used.
type ResponseError struct {
	Kind    error
	Status  int
	Attempt int
	// Title is the <title> of the response when it is an html page.
	Title string
}

func (e *ResponseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " (status %d", e.Status)
	if e.Title != "" {
		fmt.Fprintf(&b, ", page %q", e.Title)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, ", attempt %d", e.Attempt)
	}
	b.WriteString(")")
	return b.String()
}

func (e *ResponseError) Unwrap() error {
	return e.Kind
}

// ConnectionError wraps a low-level failure where no response was received.
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s (attempt %d)", ErrTransient.Error(), e.Err.Error(), e.Attempt)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// classifyBody returns ErrAuthenticationRequired or ErrChallengeDetected when the body
// carries one of their signatures, login takes precedence, nil otherwise.
func classifyBody(body string) error {
	lowered := strings.ToLower(body)
	for _, sig := range loginSignatures {
		if strings.Contains(lowered, sig) {
			return ErrAuthenticationRequired
		}
	}
	for _, sig := range challengeSignatures {
		if strings.Contains(lowered, sig) {
			return ErrChallengeDetected
		}
	}
	return nil
}

func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
