package bus

import (
	"errors"
	"testing"
)

func TestResolveName(t *testing.T) {
	tests := []struct {
		ns, node, name string
		want           string
		wantErr        bool
	}{
		{"/", "cam", "/abs/topic", "/abs/topic", false},
		{"/", "cam", "~/image_raw", "/cam/image_raw", false},
		{"/", "cam", "~", "/cam", false},
		{"/", "test", "cam1/image_raw", "/cam1/image_raw", false},
		{"/lab", "test", "cam1/image_raw", "/lab/cam1/image_raw", false},
		{"/lab", "cam", "~/get", "/lab/cam/get", false},
		{"/", "cam", "trailing/", "/trailing", false},
		{"/", "cam", "", "", true},
		{"/", "cam", "a//b", "", true},
		{"/", "cam", "bad-char", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveName(tt.ns, tt.node, tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Fatalf("ResolveName(%q) error = %v, want ErrInvalidName", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveName(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ResolveName(%q, %q, %q) = %q, want %q", tt.ns, tt.node, tt.name, got, tt.want)
			}
		})
	}
}

func TestValidateNodeName(t *testing.T) {
	valid := []string{"cam", "_test_node_h1", "vimbax_camera_test_h1", "A9"}
	for _, name := range valid {
		if err := ValidateNodeName(name); err != nil {
			t.Errorf("ValidateNodeName(%q) = %v", name, err)
		}
	}
	invalid := []string{"", "9cam", "cam-1", "a/b", "ns.cam"}
	for _, name := range invalid {
		if err := ValidateNodeName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateNodeName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestNormalizeNamespace(t *testing.T) {
	tests := map[string]string{
		"":       "/",
		"/":      "/",
		"lab":    "/lab",
		"/lab/":  "/lab",
		"/a/b_c": "/a/b_c",
	}
	for in, want := range tests {
		got, err := NormalizeNamespace(in)
		if err != nil {
			t.Fatalf("NormalizeNamespace(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("NormalizeNamespace(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := NormalizeNamespace("/a//b"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("NormalizeNamespace(/a//b) error = %v", err)
	}
	if got := FullyQualified("/", "cam"); got != "/cam" {
		t.Errorf("FullyQualified = %q", got)
	}
	if got := FullyQualified("/lab", "cam"); got != "/lab/cam" {
		t.Errorf("FullyQualified = %q", got)
	}
}
