package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("pose pipeline message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger rather than panicking.
	called = false
	SetLogger(nil)
	Logf("dropped message")
	if called {
		t.Error("no-op logger should not invoke the previous callback")
	}
}
