package gcs

import "testing"

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prefix, name, want string
	}{
		{"", "pin_1_response.html", "pin_1_response.html"},
		{"debug", "pin_1_response.html", "debug/pin_1_response.html"},
		{"debug", "/pin_1_response.html", "debug/pin_1_response.html"},
		{"a/b", "c/d.html", "a/b/c/d.html"},
	}
	for _, tc := range cases {
		if got := objectName(tc.prefix, tc.name); got != tc.want {
			t.Errorf("objectName(%q, %q) = %q; want %q", tc.prefix, tc.name, got, tc.want)
		}
	}
}
