package stac

import "fmt"

// BuildPagedCatalogs concatenates item links into a linked sequence of
// catalogs of at most maxPageSize items each. A sequence of one carries no
// paging links; otherwise each catalog links prev/next to its neighbors, the
// first has no prev and the last no next. hrefFor maps a page index to the
// href the page will be stored under.
func BuildPagedCatalogs(baseID, description string, items []Link, maxPageSize int, hrefFor func(page int) string) []*Catalog {
	if maxPageSize < 1 {
		maxPageSize = 1
	}
	pageCount := (len(items) + maxPageSize - 1) / maxPageSize
	if pageCount == 0 {
		pageCount = 1
	}

	catalogs := make([]*Catalog, 0, pageCount)
	for page := 0; page < pageCount; page++ {
		id := baseID
		if pageCount > 1 {
			id = fmt.Sprintf("%s-%d", baseID, page)
		}
		cat := NewCatalog(id, description)
		if pageCount > 1 {
			if page > 0 {
				cat.Links = append(cat.Links, Link{Href: hrefFor(page - 1), Rel: "prev"})
			}
			if page < pageCount-1 {
				cat.Links = append(cat.Links, Link{Href: hrefFor(page + 1), Rel: "next"})
			}
		}
		lo := page * maxPageSize
		hi := lo + maxPageSize
		if hi > len(items) {
			hi = len(items)
		}
		cat.Links = append(cat.Links, items[lo:hi]...)
		catalogs = append(catalogs, cat)
	}
	return catalogs
}
