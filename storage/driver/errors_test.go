package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	drvName := "foo"
	errMsg := "unexpected error"

	e := Error{
		DriverName: drvName,
		Detail:     errors.New(errMsg),
	}

	exp := fmt.Sprintf("%s: %s", drvName, errMsg)

	if e.Error() != exp {
		t.Errorf("expected: %s, got: %s", exp, e.Error())
	}

	b, err := json.Marshal(&e)
	if err != nil {
		t.Fatal(err)
	}
	expJSON := `{"driver":"foo","detail":"unexpected error"}`
	if gotJSON := string(b); gotJSON != expJSON {
		t.Fatalf("expected JSON: %s,\n got: %s", expJSON, gotJSON)
	}
}

func TestErrorUnwrap(t *testing.T) {
	detail := errors.New("connection refused")
	e := Error{DriverName: "s3", Detail: detail}

	if !errors.Is(e, detail) {
		t.Errorf("expected Error to unwrap to its detail")
	}
}

func TestPathRegexp(t *testing.T) {
	for path, valid := range map[string]bool{
		"/users/1/profile":  true,
		"/a":                true,
		"/a-b_c.d":          true,
		"":                  false,
		"relative/path":     false,
		"/trailing/":        false,
		"/with space":       false,
		"//double":          false,
		"/locks/doc.lock":   true,
		"/UPPER/case.Value": true,
	} {
		if got := PathRegexp.MatchString(path); got != valid {
			t.Errorf("path %q: expected match=%v, got %v", path, valid, got)
		}
	}
}
