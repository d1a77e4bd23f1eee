package crawler

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/selector"
)

// ProfileSchema maps every ProfileRecord field to the query that locates it.
type ProfileSchema struct {
	Name           selector.Query
	JobTitle       selector.Query
	ImageURL       selector.Query
	Address        selector.Query
	Description    selector.Query
	Offices        selector.Query
	Languages      selector.Query
	ContactDetails map[string]selector.Query
	SocialAccounts map[string]selector.Query
}

// DefaultProfileSchema matches agent pages by class names rather than
// element positions. Contact values and the name read only the first text
// node, so a blank value stays blank instead of picking up later text.
func DefaultProfileSchema() ProfileSchema {
	contacts := make(map[string]selector.Query, len(ContactLabels))
	for _, label := range ContactLabels {
		contacts[label] = selector.XPathText(
			fmt.Sprintf(`(//span[contains(text(), %q)]/following-sibling::text())[1]`, label),
		)
	}
	socials := make(map[string]selector.Query, len(SocialPlatforms))
	for _, platform := range SocialPlatforms {
		socials[platform] = selector.CSSAttr(fmt.Sprintf(`a[href*=%q]`, platform), "href")
	}
	return ProfileSchema{
		Name:           selector.XPathText("(" + classTextNodes("h2", "agent-name") + ")[1]"),
		JobTitle:       selector.CSSText("span.agent-title"),
		ImageURL:       selector.CSSAttr("div.agent-image img", "src"),
		Address:        selector.CSSText("div.agent-address"),
		Description:    selector.CSSText("div.agent-description"),
		Offices:        selector.XPathText(classTextNodes("div", "agent-office")),
		Languages:      selector.XPathText(classTextNodes("div", "agent-languages")),
		ContactDetails: contacts,
		SocialAccounts: socials,
	}
}

func classTextNodes(tag, class string) string {
	return fmt.Sprintf(
		`//%s[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]/text()`,
		tag, class,
	)
}

// ProfileExtractor turns a fetched profile document into a ProfileRecord.
// It is total: missing structure degrades to defaults.
type ProfileExtractor struct {
	schema ProfileSchema
	logger *zap.Logger
}

// NewProfileExtractor builds an extractor. A nil logger disables default
// field logging.
func NewProfileExtractor(schema ProfileSchema, logger *zap.Logger) *ProfileExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileExtractor{schema: schema, logger: logger}
}

// Extract never fails. profileURL is copied into the record as-is.
func (x *ProfileExtractor) Extract(profileURL string, body []byte) ProfileRecord {
	rec := NewProfileRecord(profileURL)
	doc, err := selector.Parse(bytes.NewReader(body))
	if err != nil {
		x.logger.Warn("Profile document unparseable; emitting defaults",
			zap.String("url", profileURL),
			zap.Error(err),
		)
		return rec
	}
	return x.ExtractDocument(profileURL, doc)
}

// ExtractDocument applies the schema to an already parsed document.
func (x *ProfileExtractor) ExtractDocument(profileURL string, doc selector.Document) ProfileRecord {
	rec := NewProfileRecord(profileURL)
	var defaulted []string
	text := func(field string, q selector.Query) string {
		v := first(doc, q)
		if v == "" {
			defaulted = append(defaulted, field)
		}
		return v
	}
	list := func(field string, q selector.Query) []string {
		v := all(doc, q)
		if len(v) == 0 {
			defaulted = append(defaulted, field)
		}
		return v
	}

	rec.Name = text("name", x.schema.Name)
	rec.JobTitle = text("job_title", x.schema.JobTitle)
	rec.ImageURL = text("image_url", x.schema.ImageURL)
	rec.Address = text("address", x.schema.Address)
	rec.Description = text("description", x.schema.Description)
	rec.Offices = list("offices", x.schema.Offices)
	rec.Languages = list("languages", x.schema.Languages)
	for _, label := range ContactLabels {
		rec.ContactDetails[label] = text("contact_details."+label, x.schema.ContactDetails[label])
	}
	for _, platform := range SocialPlatforms {
		rec.SocialAccounts[platform] = text("social_accounts."+platform, x.schema.SocialAccounts[platform])
	}

	if len(defaulted) > 0 {
		x.logger.Debug("Profile fields defaulted",
			zap.String("url", profileURL),
			zap.Strings("fields", defaulted),
		)
	}
	return rec
}

// first and all treat an unset query as "no match".
func first(doc selector.Document, q selector.Query) string {
	if q.Expr == "" {
		return ""
	}
	return doc.First(q)
}

func all(doc selector.Document, q selector.Query) []string {
	if q.Expr == "" {
		return []string{}
	}
	values := doc.All(q)
	if values == nil {
		return []string{}
	}
	return values
}
