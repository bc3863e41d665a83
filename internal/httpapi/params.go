package httpapi

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// unsupportedMediaTypeError rejects POST bodies that are neither form nor JSON.
type unsupportedMediaTypeError struct{ ct string }

func (e unsupportedMediaTypeError) Error() string {
	return fmt.Sprintf("unsupported Content-Type %q: want application/x-www-form-urlencoded or application/json", e.ct)
}

func (e unsupportedMediaTypeError) StatusCode() int { return http.StatusUnsupportedMediaType }

type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

// requestParams collects parameters from the query string and, for POST,
// from a form or JSON object body. Body values win over the query string.
// JSON scalars are stringified so both encodings read the same way.
func requestParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	vals := r.URL.Query()
	if r.Method != http.MethodPost {
		return vals, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct := r.Header.Get("Content-Type")
	mt := ""
	if ct != "" {
		var err error
		if mt, _, err = mime.ParseMediaType(ct); err != nil {
			return nil, unsupportedMediaTypeError{ct: ct}
		}
		mt = strings.ToLower(mt)
	}
	switch mt {
	case "", "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, badRequestError{msg: "invalid form body"}
		}
		for k, vs := range r.PostForm {
			vals[k] = vs
		}
	case "application/json":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, badRequestError{msg: "invalid JSON body"}
		}
		for k, v := range body {
			switch v := v.(type) {
			case string:
				vals.Set(k, v)
			case bool:
				vals.Set(k, strconv.FormatBool(v))
			case float64:
				vals.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
			case nil:
			default:
				return nil, badRequestError{msg: fmt.Sprintf("field %q must be a string, number or boolean", k)}
			}
		}
	default:
		return nil, unsupportedMediaTypeError{ct: ct}
	}
	return vals, nil
}

// pairParam accepts "src|trg" (apy style) as well as "src-trg".
func pairParam(s string) string {
	return strings.Replace(strings.TrimSpace(s), "|", "-", 1)
}

// boolParam treats presence without a value, "1", "true" and "yes" as true.
func boolParam(vals url.Values, name string) bool {
	if _, ok := vals[name]; !ok {
		return false
	}
	switch strings.ToLower(vals.Get(name)) {
	case "", "1", "true", "yes", "on":
		return true
	}
	return false
}
