package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/roster-crawler/internal/selector"
)

// ProfileCardLinkQuery matches the image link of each roster card.
var ProfileCardLinkQuery = selector.CSSAttr(
	"article .cms-int-roster-card-image-container.site-roster-card-image-link",
	"href",
)

// ExtractProfileLinks returns the profile hrefs found in a listing fragment,
// in document order and without deduplication. A fragment without cards
// yields an empty slice.
func ExtractProfileLinks(fragment string) []string {
	doc, err := selector.ParseString(fragment)
	if err != nil {
		return []string{}
	}
	return doc.All(ProfileCardLinkQuery)
}

// ResolveURL resolves ref against base.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse profile url %q: %w", ref, err)
	}
	resolved := baseURL.ResolveReference(refURL)
	resolved.Fragment = ""
	return resolved.String(), nil
}
