package arxiv

import "encoding/xml"

// feed is the Atom envelope the arXiv query API returns.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	ItemsPerPage int      `xml:"itemsPerPage"`
	Entries      []entry  `xml:"entry"`
}

// entry is a single paper in the Atom feed.
type entry struct {
	ID              string     `xml:"id"` // "http://arxiv.org/abs/2401.12345v2"
	Title           string     `xml:"title"`
	Summary         string     `xml:"summary"`
	Published       string     `xml:"published"` // RFC 3339
	Updated         string     `xml:"updated"`
	Authors         []author   `xml:"author"`
	Categories      []category `xml:"category"`
	Links           []link     `xml:"link"`
	PrimaryCategory category   `xml:"primary_category"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
