package credentials

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBox_SealUnseal(t *testing.T) {
	b, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox() error = %v", err)
	}
	sealed, err := b.Seal("host=db password=hunter2")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, Prefix) || strings.Contains(sealed, "hunter2") {
		t.Fatalf("Seal() = %q, want opaque prefixed value", sealed)
	}
	again, _ := b.Seal("host=db password=hunter2")
	if again == sealed {
		t.Error("two seals of the same value should use different nonces")
	}

	plain, err := b.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if plain != "host=db password=hunter2" {
		t.Errorf("Unseal() = %q", plain)
	}
}

func TestBox_Resolve(t *testing.T) {
	b, _ := NewBox(testKey)
	sealed, _ := b.Seal("s3cret")

	tests := []struct {
		name    string
		box     *Box
		stored  string
		want    string
		wantErr bool
	}{
		{"plaintext passes through", b, "plain", "plain", false},
		{"sealed value decrypts", b, sealed, "s3cret", false},
		{"tampered value fails", b, sealed[:len(sealed)-4] + "AAAA", "", true},
		{"garbage base64 fails", b, Prefix + "!!!", "", true},
		{"sealed without key fails", &Box{}, sealed, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.box.Resolve(tt.stored)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewBox_InvalidKeys(t *testing.T) {
	for _, key := range []string{"zz", "abcd"} {
		if _, err := NewBox(key); err == nil {
			t.Errorf("NewBox(%q) should fail", key)
		}
	}
	b, err := NewBox("")
	if err != nil || b.Enabled() {
		t.Errorf("NewBox(\"\") = %v, %v; want disabled box", b, err)
	}
	if v, _ := b.Seal("x"); v != "x" {
		t.Errorf("keyless Seal() = %q, want passthrough", v)
	}
}
