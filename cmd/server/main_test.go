package main

import (
	"net"
	"net/url"
	"testing"

	"github.com/bbiangul/longdoc"
)

func TestDefaultAddrAvoidsChatEndpoint(t *testing.T) {
	_, port, err := net.SplitHostPort(rootCmd.Flags().Lookup("addr").DefValue)
	if err != nil {
		t.Fatalf("addr default: %v", err)
	}
	u, err := url.Parse(longdoc.DefaultConfig().Chat.BaseURL)
	if err != nil {
		t.Fatalf("chat base URL: %v", err)
	}
	if u.Port() == port {
		t.Errorf("server listens on %s, the default chat endpoint's port", port)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
