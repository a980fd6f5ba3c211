package rewrite

import "regexp"

// Socket.IO connect-class packets begin with an Engine.IO message type
// ("4") plus a Socket.IO type digit, optionally followed by "/" and a
// namespace token and "," and a payload. The browser client smuggles
// the proxy's embedded target origin into the namespace token, so it
// must be stripped before the upstream sees the packet and restored
// before the reply reaches the browser.
var (
	// clientPacket: type code, an origin-shaped namespace, optional payload.
	clientPacket = regexp.MustCompile(`^(4\d)(/https?://[^,]+)(,.*)?$`)
	// serverPacket: connect/disconnect type code, bare default namespace,
	// optional payload. Event packets ("42...") are never rewritten on
	// this path: the upstream encodes default-namespace events without a
	// namespace token at all.
	serverPacket = regexp.MustCompile(`^(4[01])/(,.*)?$`)
)

// ClientPacket rewrites one client→server text frame, collapsing an
// origin-shaped namespace to the default namespace. Frames of any other
// shape are returned unchanged.
func ClientPacket(frame string) string {
	m := clientPacket.FindStringSubmatch(frame)
	if m == nil {
		return frame
	}
	return m[1] + "/" + m[3]
}

// ServerPacket rewrites one server→client text frame, reinserting the
// origin recorded for the socket pair at connect time into the
// default-namespace token. Frames of any other shape are returned
// unchanged.
func ServerPacket(frame, origin string) string {
	m := serverPacket.FindStringSubmatch(frame)
	if m == nil {
		return frame
	}
	return m[1] + "/" + origin + m[2]
}
