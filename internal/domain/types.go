package domain

import "time"

// Social metadata keys captured from <meta> tags.
const (
	MetaOGTitle            = "og:title"
	MetaOGDescription      = "og:description"
	MetaOGImage            = "og:image"
	MetaTwitterTitle       = "twitter:title"
	MetaTwitterDescription = "twitter:description"
	MetaTwitterImage       = "twitter:image"
	MetaPublishedTime      = "article:published_time"
)

// Metadata is the structured document summary returned by an extractor and
// stored verbatim as an item's metadata blob.
type Metadata struct {
	Meta        map[string]string `json:"meta"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Headings    Headings          `json:"headings"`
	Images      []string          `json:"images"`
}

type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
}

// ItemFilter narrows item listings. Zero values mean "no filter".
type ItemFilter struct {
	Query    string
	Domain   string
	Category string
	Tag      string
	Limit    int
	Offset   int
}

// GraphFilter narrows the projected graph query.
type GraphFilter struct {
	Tag      string
	Domain   string
	Category string
	Limit    int
}

type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
}

type GraphEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// Graph is the read-only view of the projection served to clients.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ItemSummary flattens an item row and the interesting parts of its metadata blob.
type ItemSummary struct {
	ID            int64     `json:"id"`
	URL           string    `json:"url"`
	URLNorm       string    `json:"url_norm"`
	Title         string    `json:"title"`
	Domain        string    `json:"domain"`
	Category      string    `json:"category"`
	CreatedAt     time.Time `json:"created_at"`
	Published     string    `json:"published"`
	Thumb         string    `json:"thumb"`
	OGTitle       string    `json:"og_title"`
	OGDescription string    `json:"og_description"`
	Headings      Headings  `json:"headings"`
	Images        []string  `json:"images"`
	Tags          []string  `json:"tags"`
}

// Stats backs the health endpoint.
type Stats struct {
	Items         int64      `json:"items"`
	Tags          int64      `json:"tags"`
	Categories    int64      `json:"categories"`
	LastCreatedAt *time.Time `json:"last_item_created_at"`
}
