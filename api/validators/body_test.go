package validators

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/sareehub-backend/pkg/errors"
)

type lineInput struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type cartInput struct {
	Lines  []lineInput `json:"lines" validate:"required,min=1,dive"`
	Status string      `json:"status" validate:"omitempty,oneof=open closed"`
}

func decode(t *testing.T, body string) (cartInput, *pkgerrors.Error) {
	t.Helper()
	var in cartInput
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &in)
	if err == nil {
		return in, nil
	}
	var typed *pkgerrors.Error
	require.True(t, errors.As(err, &typed), "expected *errors.Error, got %T", err)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	return in, typed
}

func TestDecodeJSONBodyAcceptsValidInput(t *testing.T) {
	in, err := decode(t, `{"lines":[{"sku":"SILK-01","quantity":2}],"status":"open"}`)
	require.Nil(t, err)
	assert.Equal(t, "SILK-01", in.Lines[0].SKU)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]struct {
		body    string
		message string
	}{
		"empty":         {"", "request body is required"},
		"malformed":     {`{"lines":`, "malformed JSON"},
		"truncated":     {`{"lines":[{"sku":"a`, "malformed JSON"},
		"bad token":     {`{"lines":]`, "malformed JSON"},
		"unknown field": {`{"lines":[{"sku":"a","quantity":1}],"extra":1}`, "invalid request body"},
		"trailing data": {`{"lines":[{"sku":"a","quantity":1}]} {}`, "request body must contain a single JSON object"},
		"wrong type":    {`{"lines":[{"sku":"a","quantity":"two"}]}`, "invalid request body"},
		"too large":     {`{"status":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, "request body too large"},
		"no lines":      {`{"lines":[]}`, "validation failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, tc.body)
			require.NotNil(t, err)
			assert.Equal(t, tc.message, err.Message())
		})
	}
}

func TestValidationDetailsUseJSONPaths(t *testing.T) {
	_, err := decode(t, `{"lines":[{"sku":"","quantity":0}],"status":"lost"}`)
	require.NotNil(t, err)

	details, ok := err.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["lines[0].sku"])
	assert.Equal(t, "is required", details["lines[0].quantity"])
	assert.Equal(t, "must be one of: open, closed", details["status"])
}
