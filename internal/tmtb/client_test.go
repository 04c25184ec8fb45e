package tmtb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loceval/loceval/internal/config"
)

func newTestClient(baseURL string) *Client {
	c := NewClient(config.TMTBConfig{
		BaseURL: baseURL,
		Secret:  "test-secret",
		Project: "game-a",
		Timeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func matchEnvelope(matches []Match) string {
	raw, _ := json.Marshal(map[string]any{
		"retcode": 0,
		"message": "OK",
		"data":    map[string]any{"list": matches},
	})
	return string(raw)
}

func TestMatchResourcesSignsPayload(t *testing.T) {
	var got signedPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, matchEnvelope(nil))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.MatchResources(context.Background(), MatchRequest{
		DataID: "d1", TextID: "ui", SrcText: "派蒙", SrcLang: "CHS", TarLang: "EN",
	}); err != nil {
		t.Fatalf("MatchResources: %v", err)
	}

	if got.Timestamp != 1700000000 {
		t.Errorf("timestamp = %d, want the pinned clock", got.Timestamp)
	}
	sum := md5.Sum([]byte("test-secret" + strconv.FormatInt(got.Timestamp, 10)))
	if want := hex.EncodeToString(sum[:]); got.Sign != want {
		t.Errorf("sign = %q, want %q", got.Sign, want)
	}
	if got.Project != "game-a" {
		t.Errorf("project = %q, want the configured default", got.Project)
	}
	if got.SrcText != "派蒙" || got.TarLang != "EN" {
		t.Errorf("request fields not forwarded: %+v", got.MatchRequest)
	}
}

func TestMatchResourcesParsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, matchEnvelope([]Match{
			{Type: "tb", SrcLangContent: "派蒙", DestLangContent: "Paimon", MatchRate: 100},
			{Type: "tm", SrcLangContent: "你好", DestLangContent: "Hello", MatchRate: 92},
		}))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	matches, err := c.MatchResources(context.Background(), MatchRequest{
		DataID: "d1", TextID: "ui", SrcText: "x", SrcLang: "CHS", TarLang: "EN",
	})
	if err != nil {
		t.Fatalf("MatchResources: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].DestLangContent != "Paimon" || matches[1].MatchRate != 92 {
		t.Errorf("envelope fields mismatch: %+v", matches)
	}
}

func TestMatchResourcesRetcodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retcode": 1001, "message": "invalid sign"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.MatchResources(context.Background(), MatchRequest{
		DataID: "d1", TextID: "ui", SrcText: "x", SrcLang: "CHS", TarLang: "EN",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T (%v), want *APIError", err, err)
	}
	if apiErr.Retcode != 1001 {
		t.Errorf("retcode = %d, want 1001", apiErr.Retcode)
	}
}

func TestMatchResourcesRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, matchEnvelope(nil))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.MatchResources(context.Background(), MatchRequest{
		DataID: "d1", TextID: "ui", SrcText: "x", SrcLang: "CHS", TarLang: "EN",
	}); err != nil {
		t.Fatalf("MatchResources after retry: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want a retry after the 500", hits.Load())
	}
}

func TestMatchResourcesValidation(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	c.defaultProject = ""
	if _, err := c.MatchResources(context.Background(), MatchRequest{
		SrcText: "x", SrcLang: "CHS", TarLang: "EN",
	}); err == nil {
		t.Error("expected error when project is missing everywhere")
	}
	c.defaultProject = "game-a"
	if _, err := c.MatchResources(context.Background(), MatchRequest{SrcLang: "CHS", TarLang: "EN"}); err == nil {
		t.Error("expected error for missing source text")
	}
}

func TestLookupSplitsMatchTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, matchEnvelope([]Match{
			{Type: "tb", SrcLangContent: "派蒙", DestLangContent: "Paimon"},
			{Type: "tm", SrcLangContent: "你好", DestLangContent: "Hello"},
		}))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	terms, similar, err := c.Lookup(context.Background(), "派蒙你好", "EN")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	var termList, similarList []Match
	if err := json.Unmarshal([]byte(terms), &termList); err != nil {
		t.Fatalf("terminology not a JSON list: %v", err)
	}
	if err := json.Unmarshal([]byte(similar), &similarList); err != nil {
		t.Fatalf("similar translations not a JSON list: %v", err)
	}
	if len(termList) != 1 || termList[0].DestLangContent != "Paimon" {
		t.Errorf("terminology split wrong: %s", terms)
	}
	if len(similarList) != 1 || similarList[0].DestLangContent != "Hello" {
		t.Errorf("similar split wrong: %s", similar)
	}
}
