package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if i := strings.Index(tag, ","); i >= 0 {
			tag = tag[:i]
		}
		return tag
	})
	return v
}

// decode reads a single JSON object into T and validates it.
func decode[T any](r *http.Request) (T, error) {
	var dst T
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return dst, badRequest("read body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return dst, &Error{Status: http.StatusRequestEntityTooLarge, Code: "too_large", Msg: "request body too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return dst, badRequest("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		return dst, badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return dst, badRequest("invalid JSON: trailing data")
	}
	if err := validate.Struct(dst); err != nil {
		return dst, validationError(err)
	}
	return dst, nil
}

func validationError(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return &Error{Status: http.StatusBadRequest, Code: "validation", Msg: strings.Join(msgs, "; "), Err: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	var body errorBody
	body.Error.Code = e.Code
	body.Error.Message = e.Error()
	if e.Status >= http.StatusInternalServerError && e.Status != http.StatusServiceUnavailable && e.Status != http.StatusGatewayTimeout {
		body.Error.Message = e.Msg
	}
	writeJSON(w, e.Status, body)
}
