package validation

import (
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestIsHTTPURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/hook", true},
		{"http://localhost:8080", true},
		{"ftp://example.com", false},
		{"/relative/path", false},
		{"https://", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsHTTPURL(tt.in); got != tt.want {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPURLTag(t *testing.T) {
	v := validator.New()
	if err := v.RegisterValidation("httpurl", httpURL); err != nil {
		t.Fatalf("RegisterValidation: %v", err)
	}

	type body struct {
		URL string `validate:"omitempty,httpurl"`
	}
	if err := v.Struct(body{URL: "https://example.com"}); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := v.Struct(body{}); err != nil {
		t.Errorf("empty optional URL rejected: %v", err)
	}
	if err := v.Struct(body{URL: "javascript:alert(1)"}); err == nil {
		t.Error("non-http URL accepted")
	}
}

func TestFieldName(t *testing.T) {
	type body struct {
		ExternalUserID string `json:"external_user_id,omitempty"`
		Limit          int    `form:"limit"`
		Hidden         string `json:"-"`
		Plain          string
	}
	typ := reflect.TypeOf(body{})
	want := []string{"external_user_id", "limit", "", ""}
	for i, w := range want {
		if got := FieldName(typ.Field(i)); got != w {
			t.Errorf("FieldName(%s) = %q, want %q", typ.Field(i).Name, got, w)
		}
	}
}
