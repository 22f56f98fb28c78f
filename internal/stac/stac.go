package stac

import "encoding/json"

const Version = "1.0.0"

type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Catalog is the artifact workers produce and downstream steps consume. The
// core treats item contents as opaque; only the link graph matters for
// chaining.
type Catalog struct {
	Type        string `json:"type"`
	StacVersion string `json:"stac_version"`
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Links       []Link `json:"links"`
}

func NewCatalog(id, description string) *Catalog {
	return &Catalog{
		Type:        "Catalog",
		StacVersion: Version,
		ID:          id,
		Description: description,
	}
}

// ItemLinks returns the catalog links with rel=item, preserving order.
func (c *Catalog) ItemLinks() []Link {
	var out []Link
	for _, l := range c.Links {
		if l.Rel == "item" {
			out = append(out, l)
		}
	}
	return out
}

// NextHref returns the href of the rel=next link, or "".
func (c *Catalog) NextHref() string {
	for _, l := range c.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

type Asset struct {
	Href  string   `json:"href"`
	Title string   `json:"title,omitempty"`
	Type  string   `json:"type,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type ItemProperties struct {
	Datetime      *string `json:"datetime"`
	StartDatetime string  `json:"start_datetime,omitempty"`
	EndDatetime   string  `json:"end_datetime,omitempty"`
}

type Item struct {
	Type        string           `json:"type"`
	StacVersion string           `json:"stac_version"`
	ID          string           `json:"id"`
	BBox        []float64        `json:"bbox,omitempty"`
	Geometry    json.RawMessage  `json:"geometry"`
	Properties  ItemProperties   `json:"properties"`
	Assets      map[string]Asset `json:"assets"`
	Links       []Link           `json:"links"`
}

func NewItem(id string) *Item {
	return &Item{
		Type:        "Feature",
		StacVersion: Version,
		ID:          id,
		Geometry:    json.RawMessage("null"),
		Assets:      map[string]Asset{},
		Links:       []Link{},
	}
}
