package main

import (
	"testing"
	"time"

	_ "github.com/pharmatrade/pharmatrade/internal/testing/guard"
)

func TestMainReturnsImmediatelyInTestMode(t *testing.T) {
	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("main did not honor the test mode gate")
	}
}
