package proxyring

import (
	"net/http"
	"testing"
)

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New([]string{"http://good.test:8080", "::notaurl"}); err == nil {
		t.Fatal("expected error for invalid proxy URL")
	}
}

func TestRoundRobin(t *testing.T) {
	r, err := New([]string{"http://a.test:1", "http://b.test:2", "http://c.test:3"})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}

	want := []string{"a.test:1", "b.test:2", "c.test:3", "a.test:1"}
	for i, host := range want {
		e := r.Next()
		if e == nil || e.URL.Host != host {
			t.Fatalf("Next() #%d = %v, want %s", i, e, host)
		}
	}
}

func TestEmptyRingIsDirect(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	if e := r.Next(); e != nil {
		t.Fatalf("Next() = %v, want nil", e)
	}

	u, err := r.ProxyFunc()(&http.Request{})
	if err != nil || u != nil {
		t.Fatalf("ProxyFunc() = %v, %v, want nil, nil", u, err)
	}
}

func TestFailureThresholdExcludesEntry(t *testing.T) {
	r, err := New([]string{"http://a.test:1", "http://b.test:2"})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}

	a := r.Next()
	for i := 0; i < failureThreshold; i++ {
		r.Report(a, false)
	}

	// only b remains usable
	for i := 0; i < 4; i++ {
		e := r.Next()
		if e == nil || e.URL.Host != "b.test:2" {
			t.Fatalf("Next() after exclusion = %v, want b.test:2", e)
		}
	}

	snap := r.Snapshot()
	if snap[0].Usable || snap[0].Failures != failureThreshold {
		t.Errorf("snapshot[0] = %+v, want unusable after %d failures", snap[0], failureThreshold)
	}
	if !snap[1].Usable {
		t.Errorf("snapshot[1] = %+v, want usable", snap[1])
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	r, err := New([]string{"http://a.test:1"})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}

	a := r.Next()
	r.Report(a, false)
	r.Report(a, false)
	r.Report(a, true)
	r.Report(a, false)
	r.Report(a, false)

	if e := r.Next(); e == nil {
		t.Fatal("entry excluded despite non-consecutive failures")
	}
}

func TestAllUnusableMeansDirect(t *testing.T) {
	r, err := New([]string{"http://a.test:1"})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	a := r.Next()
	for i := 0; i < failureThreshold; i++ {
		r.Report(a, false)
	}
	if e := r.Next(); e != nil {
		t.Fatalf("Next() = %v, want nil when pool is exhausted", e)
	}

	u, err := r.ProxyFunc()(&http.Request{})
	if err != nil || u != nil {
		t.Fatalf("ProxyFunc() = %v, %v, want direct", u, err)
	}
}

func TestProxyFuncServesBorrowedEntry(t *testing.T) {
	r, err := New([]string{"http://a.test:1", "http://b.test:2"})
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	pf := r.ProxyFunc()

	r.Next()
	u, _ := pf(&http.Request{})
	if u == nil || u.Host != "a.test:1" {
		t.Fatalf("proxy = %v, want a.test:1", u)
	}
	r.Next()
	u, _ = pf(&http.Request{})
	if u == nil || u.Host != "b.test:2" {
		t.Fatalf("proxy = %v, want b.test:2", u)
	}
}
