package rewrite

import "testing"

func TestClientPacket_StripsOriginNamespace(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"connect with payload", `40/https://api.example.com,{"token":1}`, `40/,{"token":1}`},
		{"connect without payload", "40/https://api.example.com", "40/"},
		{"disconnect", "41/http://localhost:8080", "41/"},
		{"event on origin namespace", `42/https://api.example.com,["event",{"a":1}]`, `42/,["event",{"a":1}]`},
		{"origin with port and path", `40/http://localhost:9000/api,{"x":2}`, `40/,{"x":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientPacket(tt.frame); got != tt.want {
				t.Errorf("ClientPacket(%q) = %q, want %q", tt.frame, got, tt.want)
			}
		})
	}
}

func TestClientPacket_PassThrough(t *testing.T) {
	for _, frame := range []string{
		"2",           // engine.io ping
		"3",           // engine.io pong
		"40",          // connect on default namespace
		`40/admin,{}`, // non-origin namespace
		`42/,["event"]`,
		`42["event",1]`,
		"",
	} {
		if got := ClientPacket(frame); got != frame {
			t.Errorf("ClientPacket(%q) = %q, want unchanged", frame, got)
		}
	}
}

func TestServerPacket_ReinsertsOrigin(t *testing.T) {
	const origin = "https://api.example.com"
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"connect ack with payload", `40/,{"ok":true}`, `40/https://api.example.com,{"ok":true}`},
		{"connect ack without payload", "40/", "40/https://api.example.com"},
		{"disconnect", "41/", "41/https://api.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerPacket(tt.frame, origin); got != tt.want {
				t.Errorf("ServerPacket(%q) = %q, want %q", tt.frame, got, tt.want)
			}
		})
	}
}

func TestServerPacket_PassThrough(t *testing.T) {
	for _, frame := range []string{
		"2",
		"40", // no namespace token
		`42/,["event"]`,
		`42["event",1]`,
		`40/admin,{}`,
		"",
	} {
		if got := ServerPacket(frame, "https://api.example.com"); got != frame {
			t.Errorf("ServerPacket(%q) = %q, want unchanged", frame, got)
		}
	}
}

// Stripping and reinserting the same origin reproduces the namespace field.
func TestPacket_RoundTrip(t *testing.T) {
	const origin = "https://api.example.com"

	out := ClientPacket(`40/https://api.example.com,{"token":1}`)
	if out != `40/,{"token":1}` {
		t.Fatalf("ClientPacket = %q", out)
	}

	back := ServerPacket(`40/,{"ok":true}`, origin)
	if back != `40/https://api.example.com,{"ok":true}` {
		t.Fatalf("ServerPacket = %q", back)
	}
}
