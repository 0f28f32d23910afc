package source

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"androidinfo/internal/httpx"
)

func TestSourceFileDecodesAndMemoizes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/platform/frameworks/base/+/android-11.0.0_r1/core/res/AndroidManifest.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(base64.StdEncoding.EncodeToString([]byte("<manifest/>"))))
	}))
	defer srv.Close()

	g, err := NewGoogleSource(httpx.NewSession(httpx.WithHTTPClient(srv.Client())), srv.URL)
	if err != nil {
		t.Fatalf("NewGoogleSource: %v", err)
	}
	p := CodePath{Project: "platform/frameworks/base", Path: "core/res/AndroidManifest.xml"}

	for i := 0; i < 3; i++ {
		content, err := g.SourceFile(context.Background(), p, "android-11.0.0_r1")
		if err != nil {
			t.Fatalf("SourceFile: %v", err)
		}
		if content != "<manifest/>" {
			t.Fatalf("unexpected content: %q", content)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one upstream fetch, got %d", got)
	}
}

func TestSourceFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	g, err := NewGoogleSource(httpx.NewSession(httpx.WithHTTPClient(srv.Client())), srv.URL)
	if err != nil {
		t.Fatalf("NewGoogleSource: %v", err)
	}
	_, err = g.SourceFile(context.Background(), CodePath{Project: "p", Path: "f"}, "ref")
	if !httpx.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/platform/known/+/refs/heads/main" {
			w.Write([]byte(")]}'\n{}"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g, err := NewGoogleSource(httpx.NewSession(httpx.WithHTTPClient(srv.Client())), srv.URL)
	if err != nil {
		t.Fatalf("NewGoogleSource: %v", err)
	}
	ok, err := g.Exists(context.Background(), "platform/known", MainRef)
	if err != nil || !ok {
		t.Fatalf("Exists(known) = %v, %v", ok, err)
	}
	ok, err = g.Exists(context.Background(), "platform/unknown", MainRef)
	if err != nil || ok {
		t.Fatalf("Exists(unknown) = %v, %v", ok, err)
	}
}
