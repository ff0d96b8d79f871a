package stamp

import (
	"fmt"
	"html"
	"time"
)

// HTMLBadge renders the snippet a sender pastes into an HTML email.
func HTMLBadge(verifyURL string, expiresAt time.Time) string {
	u := html.EscapeString(verifyURL)
	return fmt.Sprintf(
		`<a href="%s" style="display:inline-block;padding:4px 8px;border:1px solid #2e7d32;border-radius:4px;color:#2e7d32;font:12px sans-serif;text-decoration:none" title="Valid until %s">&#10003; Verified human sender</a>`,
		u, expiresAt.UTC().Format("2006-01-02"),
	)
}

// TextBadge renders the plain-text variant.
func TextBadge(verifyURL string) string {
	return "-- \nVerified human sender. Check this stamp: " + verifyURL
}
