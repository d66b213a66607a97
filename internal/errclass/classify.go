// Package errclass maps raw transport and service failures onto the
// fixed set of error kinds the workflow surfaces to the user. Raw errors
// never cross into the presentation layer; only the classification does.
package errclass

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindTimeout
	KindNetworkUnavailable
	KindNotFound
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindNotFound:
		return "not_found"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "generic"
	}
}

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Classification is the only failure shape the presentation layer sees.
type Classification struct {
	Kind       Kind
	Message    string
	Severity   Severity
	ClearDelay time.Duration
}

const (
	clearDelayTimeout = 8 * time.Second
	clearDelayDefault = 5 * time.Second

	msgTimeout     = "The request timed out. The cadastral service may be busy; please try again."
	msgNetwork     = "Network unavailable. Check your connection and try again."
	msgNotFound    = "No cadastral information was found for this location."
	msgUnavailable = "The cadastral service is temporarily unavailable. Please try again shortly."
	msgFallback    = "Something went wrong while contacting the service. Please try again."
)

// StatusError is a non-2xx HTTP response from an upstream service.
// ServerMessage carries any human-readable message the server supplied.
type StatusError struct {
	StatusCode    int
	ServerMessage string
	URL           string
}

func (e *StatusError) Error() string {
	if e.ServerMessage != "" {
		return e.ServerMessage
	}
	return http.StatusText(e.StatusCode)
}

// Classify is total: every error, including nil, yields exactly one
// classification. First match wins, in the order timeout, network,
// 404, 502/503, generic.
func Classify(err error) Classification {
	switch {
	case isTimeout(err):
		return Classification{
			Kind:       KindTimeout,
			Message:    msgTimeout,
			Severity:   SeverityError,
			ClearDelay: clearDelayTimeout,
		}
	case isNetwork(err):
		return Classification{
			Kind:       KindNetworkUnavailable,
			Message:    msgNetwork,
			Severity:   SeverityError,
			ClearDelay: clearDelayDefault,
		}
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			return Classification{
				Kind:       KindNotFound,
				Message:    msgNotFound,
				Severity:   SeverityWarning,
				ClearDelay: clearDelayDefault,
			}
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			return Classification{
				Kind:       KindServiceUnavailable,
				Message:    msgUnavailable,
				Severity:   SeverityError,
				ClearDelay: clearDelayDefault,
			}
		}
	}

	return Classification{
		Kind:       KindGeneric,
		Message:    genericMessage(err, se),
		Severity:   SeverityError,
		ClearDelay: clearDelayDefault,
	}
}

func genericMessage(err error, se *StatusError) string {
	if se != nil && se.ServerMessage != "" {
		return se.ServerMessage
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		return err.Error()
	}
	return msgFallback
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func isNetwork(err error) bool {
	if err == nil {
		return false
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var de *net.DNSError
	return errors.As(err, &de)
}
