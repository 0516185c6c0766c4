package controller

import (
	"testing"
	"time"
)

func TestDefaultTimeout(t *testing.T) {
	c := New()
	if c.Timeout() != DefaultTimeout {
		t.Fatalf("expected default timeout %v, got %v", DefaultTimeout, c.Timeout())
	}
}

func TestSetTimeoutInSeconds(t *testing.T) {
	c := New()
	c.SetTimeout(2.5)
	if got, want := c.Timeout(), 2500*time.Millisecond; got != want {
		t.Fatalf("Timeout() = %v, want %v", got, want)
	}
}

func TestFailedInvariant(t *testing.T) {
	c := New()
	if c.Failed() {
		t.Fatal("new controller should not be failed")
	}
	c.SetFailureText("TIMEOUT")
	if !c.Failed() {
		t.Fatal("controller with failure text should be failed")
	}
	c.SetFailureText("")
	if c.Failed() {
		t.Fatal("clearing failure text should clear Failed()")
	}
}

func TestResetPreservesCancelled(t *testing.T) {
	c := New()
	c.StartCancel()
	c.SetFailureText("CANCELED")
	c.SetRTT(50 * time.Millisecond)
	c.SetRequestID(7)
	c.SetTimeout(1)

	c.Reset()

	if !c.IsCancelled() {
		t.Fatal("Reset must not clear cancelled")
	}
	if c.Failed() {
		t.Fatal("Reset must clear failure text")
	}
	if c.RTT() != 0 {
		t.Fatal("Reset must clear rtt")
	}
	if c.RequestID() != 0 {
		t.Fatal("Reset must clear request id")
	}
	if c.Timeout() != DefaultTimeout {
		t.Fatal("Reset must restore default timeout")
	}
}

func TestCancelIsConcurrencySafe(t *testing.T) {
	c := New()
	done := make(chan struct{})
	go func() {
		c.StartCancel()
		close(done)
	}()
	_ = c.IsCancelled()
	<-done
	if !c.IsCancelled() {
		t.Fatal("expected cancellation to be observed after goroutine completes")
	}
}
