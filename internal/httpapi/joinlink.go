package httpapi

import (
	"net/url"
	"strings"
)

// JoinURL builds the link controllers open to join a room. The base is the
// public origin the display should render as a QR code; an empty base yields
// a relative path so the TV client can fill its own origin in.
func JoinURL(base, roomID string) string {
	path := "/join/" + url.PathEscape(roomID)
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + path
}
