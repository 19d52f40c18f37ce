package store

import (
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestRequestKey(t *testing.T) {
	r := httptest.NewRequest("GET", "http://app.example.com/api/teachers?page=2", nil)
	key := RequestKey(r)
	want := "GET app.example.com/api/teachers?page=2"
	if key != want {
		t.Errorf("RequestKey = %q, want %q", key, want)
	}
}

func TestRequestKey_RelativeURLFallsBackToHost(t *testing.T) {
	r := httptest.NewRequest("GET", "/courses", nil)
	r.Host = "app.example.com"
	key := RequestKey(r)
	want := "GET app.example.com/courses"
	if key != want {
		t.Errorf("RequestKey = %q, want %q", key, want)
	}
}

func TestURLKey_MatchesRequestKey(t *testing.T) {
	u, err := url.Parse("http://app.example.com/api/teachers?page=2")
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", u.String(), nil)
	if URLKey(u) != RequestKey(r) {
		t.Errorf("URLKey = %q, RequestKey = %q; keys must agree", URLKey(u), RequestKey(r))
	}
}

func TestKey_MethodDistinguishes(t *testing.T) {
	get := Key("GET", "h", "/p")
	post := Key("POST", "h", "/p")
	if get == post {
		t.Error("Keys for different methods must differ")
	}
}
