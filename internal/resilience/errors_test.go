package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	transient := []error{
		NewTransientError(errors.New("server overloaded"), 503),
		fmt.Errorf("api call failed: %w", NewTransientError(errors.New("rate limited"), 429)),
		fmt.Errorf("write tcp: %w", syscall.ECONNRESET),
		fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
		&net.DNSError{IsTimeout: true, Err: "timeout"},
		errors.New("read: connection reset by peer"),
		errors.New("net/http: TLS handshake timeout"),
		errors.New("unexpected EOF"),
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", err)
		}
	}

	permanent := []error{nil, errors.New("invalid input: missing field")}
	for _, err := range permanent {
		if IsTransient(err) {
			t.Errorf("expected %v to be permanent", err)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 409, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be permanent", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
