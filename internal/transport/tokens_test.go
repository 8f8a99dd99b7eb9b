package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestTokenTransport_Write(t *testing.T) {
	tt := NewTokenTransport(nil, Options{Secure: true, Domain: "dash.example.com"})
	rec := httptest.NewRecorder()
	tt.Write(rec, "acc", "ref")

	c := cookiesByName(rec)
	acc, ref := c[AccessTokenName], c[RefreshTokenName]
	if acc == nil || ref == nil {
		t.Fatalf("cookies = %v", c)
	}
	if acc.Value != "acc" || acc.Path != "/" || acc.MaxAge != 15*60 {
		t.Errorf("access cookie = %+v", acc)
	}
	if ref.Value != "ref" || ref.Path != RefreshPath || ref.MaxAge != 7*24*60*60 {
		t.Errorf("refresh cookie = %+v", ref)
	}
	for _, ck := range []*http.Cookie{acc, ref} {
		if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode || ck.Domain != "dash.example.com" {
			t.Errorf("%s attributes = %+v", ck.Name, ck)
		}
	}
}

func TestTokenTransport_Clear(t *testing.T) {
	tt := NewTokenTransport(CookieCarrier{}, Options{SameSite: http.SameSiteStrictMode, AccessTTL: time.Minute})
	rec := httptest.NewRecorder()
	tt.Clear(rec)

	c := cookiesByName(rec)
	if len(c) != 2 {
		t.Fatalf("cleared cookies = %v", c)
	}
	for name, ck := range c {
		if ck.MaxAge >= 0 || ck.Value != "" {
			t.Errorf("%s not expired: %+v", name, ck)
		}
		if ck.Secure {
			t.Errorf("%s Secure without Options.Secure", name)
		}
	}
	if c[RefreshTokenName].Path != RefreshPath {
		t.Errorf("refresh clear path = %q", c[RefreshTokenName].Path)
	}
}

func TestTokenTransport_Read(t *testing.T) {
	tt := NewTokenTransport(nil, Options{})

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if _, ok := tt.Access(r); ok {
		t.Error("no token present, Access ok")
	}
	if _, ok := tt.Refresh(r); ok {
		t.Error("no token present, Refresh ok")
	}

	r.AddCookie(&http.Cookie{Name: AccessTokenName, Value: "cookie-acc"})
	r.AddCookie(&http.Cookie{Name: RefreshTokenName, Value: "cookie-ref"})
	if v, ok := tt.Access(r); !ok || v != "cookie-acc" {
		t.Errorf("Access = %q, %v", v, ok)
	}
	if v, ok := tt.Refresh(r); !ok || v != "cookie-ref" {
		t.Errorf("Refresh = %q, %v", v, ok)
	}

	r.Header.Set("Authorization", "Bearer header-acc")
	if v, _ := tt.Access(r); v != "header-acc" {
		t.Errorf("bearer header should win, got %q", v)
	}
}

func TestBearer(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"bearer  abc ":  "abc",
		"BEARER abc":    "abc",
		"Basic abc":     "",
		"Bearer":        "",
		"":              "",
		"Bearerabc def": "",
	}
	for in, want := range tests {
		if got := bearer(in); got != want {
			t.Errorf("bearer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSameSite(t *testing.T) {
	if ParseSameSite("Strict") != http.SameSiteStrictMode ||
		ParseSameSite("none") != http.SameSiteNoneMode ||
		ParseSameSite("") != http.SameSiteLaxMode ||
		ParseSameSite("bogus") != http.SameSiteLaxMode {
		t.Error("ParseSameSite mapping wrong")
	}
}
