package fetcher

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func assertFetchError(t *testing.T, err error, source string) {
	t.Helper()
	if err == nil {
		t.Fatal("期望返回 FetchError, 实际为 nil")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("错误类型应为 *FetchError, 实际 %T: %v", err, err)
	}
	if fe.Source != source {
		t.Fatalf("source = %q, want %q", fe.Source, source)
	}
}
