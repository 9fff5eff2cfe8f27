package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{NotFound, http.StatusNotFound},
		{BadRequest, http.StatusBadRequest},
		{Validation, http.StatusBadRequest},
		{Driver, http.StatusInternalServerError},
		{Connection, http.StatusServiceUnavailable},
		{Authentication, http.StatusUnauthorized},
		{Internal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.want {
				t.Errorf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", New(NotFound, "device not found"), NotFound},
		{"wrapped classified", fmt.Errorf("lookup: %w", New(BadRequest, "x")), BadRequest},
		{"deadline", context.DeadlineExceeded, Connection},
		{"wrapped deadline", fmt.Errorf("discover: %w", context.DeadlineExceeded), Connection},
		{"plain", errors.New("boom"), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(nil); got != http.StatusOK {
		t.Errorf("StatusCode(nil) = %d", got)
	}
	if got := StatusCode(New(Authentication, "rejected")); got != http.StatusUnauthorized {
		t.Errorf("StatusCode(auth) = %d", got)
	}
	if got := StatusCode(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("StatusCode(plain) = %d", got)
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("socket closed")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message only", New(NotFound, "device not found"), "device not found"},
		{"cause only", Wrap(Internal, cause, ""), "socket closed"},
		{"message and cause", Wrap(Connection, cause, "discover"), "discover: socket closed"},
		{"kind fallback", &Error{Kind: Internal}, "internal"},
		{"driver attributed", DriverFault("sonos", nil, "bad schema"), "driver sonos: bad schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(Wrap(Internal, cause, "x"), cause) {
		t.Error("Wrap should keep the cause in the chain")
	}
}

func TestWithDriver(t *testing.T) {
	t.Run("annotates driver error", func(t *testing.T) {
		err := WithDriver(New(Driver, "missing handler"), "hue")
		fe := As(err)
		if fe == nil || fe.DriverID != "hue" {
			t.Fatalf("WithDriver() = %v, want driver hue", err)
		}
	})

	t.Run("annotates wrapped driver error", func(t *testing.T) {
		err := WithDriver(fmt.Errorf("sweep: %w", New(Driver, "bad candidate")), "hue")
		if KindOf(err) != Driver || As(err).DriverID != "hue" {
			t.Errorf("WithDriver() = %v", err)
		}
	})

	t.Run("keeps existing driver", func(t *testing.T) {
		orig := DriverFault("sonos", nil, "x")
		if got := WithDriver(orig, "hue"); got != orig {
			t.Errorf("WithDriver() replaced existing attribution: %v", got)
		}
	})

	t.Run("leaves other kinds", func(t *testing.T) {
		orig := New(NotFound, "x")
		if got := WithDriver(orig, "hue"); got != orig {
			t.Errorf("WithDriver() changed a NotFound error: %v", got)
		}
		plain := errors.New("plain")
		if got := WithDriver(plain, "hue"); got != plain {
			t.Errorf("WithDriver() changed a plain error: %v", got)
		}
	})
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) != nil")
	}

	classified := New(Authentication, "bad pin")
	if Classify(classified) != classified {
		t.Error("Classify changed an already classified error")
	}

	if got := KindOf(Classify(context.DeadlineExceeded)); got != Connection {
		t.Errorf("Classify(deadline) kind = %q, want connection", got)
	}
	if got := KindOf(Classify(errors.New("boom"))); got != Internal {
		t.Errorf("Classify(plain) kind = %q, want internal", got)
	}
}
