// Package validation holds reusable input validators: version constraints for template
// scoring configuration and the httpurl tag used on request bodies.
package validation

import (
	"net/url"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func httpURL(fl validator.FieldLevel) bool {
	return IsHTTPURL(fl.Field().String())
}

// FieldName names a struct field by its json tag, or its form tag for query
// parameters, so validation errors use the names clients send.
func FieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

// RegisterValidators installs the custom tags and field naming on gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(FieldName)
	return v.RegisterValidation("httpurl", httpURL)
}
