package observability

import (
	"context"
	"io"
	"testing"
)

func TestInitOTelDisabled(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("InitOTel() error = %v", err)
	}
	if providers != nil {
		t.Errorf("providers = %v, want nil when disabled", providers)
	}

	// Disabled init must compose with shutdown so main can defer it
	// unconditionally.
	if err := ShutdownOTel(context.Background(), providers, logger); err != nil {
		t.Errorf("ShutdownOTel(nil) error = %v", err)
	}
}

func TestShutdownOTelEmptyProviders(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)

	if err := ShutdownOTel(context.Background(), &OTelProviders{}, logger); err != nil {
		t.Errorf("ShutdownOTel(empty) error = %v", err)
	}
}
