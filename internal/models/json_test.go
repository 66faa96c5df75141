package models

import "testing"

func TestJSONValueScan(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(100), "100"},
		{float64(2.5), "2.5"},
		{false, "false"},
		{"\"coze\"", "\"coze\""},
		{[]byte("{\"a\":1}"), "{\"a\":1}"},
	}
	for _, tc := range cases {
		var v JSONValue
		if err := v.Scan(tc.in); err != nil {
			t.Fatalf("scan %v: %v", tc.in, err)
		}
		if string(v) != tc.want {
			t.Fatalf("scan %v: got %s, want %s", tc.in, string(v), tc.want)
		}
	}

	v := JSONValue("1")
	if err := v.Scan(nil); err != nil || v != nil {
		t.Fatalf("scan nil: got %q, %v", string(v), err)
	}
}
