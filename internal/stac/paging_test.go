package stac

import (
	"fmt"
	"testing"
)

func hrefFor(page int) string { return fmt.Sprintf("file:///agg/catalog%d.json", page) }

func TestBuildPagedCatalogsSinglePage(t *testing.T) {
	items := []Link{
		{Href: "./granule_0.json", Rel: "item"},
		{Href: "./granule_1.json", Rel: "item"},
	}
	cats := BuildPagedCatalogs("agg", "aggregate input", items, 10, hrefFor)
	if len(cats) != 1 {
		t.Fatalf("expected 1 catalog, got %d", len(cats))
	}
	if cats[0].NextHref() != "" {
		t.Fatalf("single page must not carry a next link")
	}
	if got := cats[0].ItemLinks(); len(got) != 2 {
		t.Fatalf("expected 2 item links, got %d", len(got))
	}
}

func TestBuildPagedCatalogsSplits(t *testing.T) {
	items := []Link{
		{Href: "./granule_0.json", Rel: "item"},
		{Href: "./granule_1.json", Rel: "item"},
	}
	cats := BuildPagedCatalogs("agg", "aggregate input", items, 1, hrefFor)
	if len(cats) != 2 {
		t.Fatalf("expected 2 catalogs, got %d", len(cats))
	}

	first, second := cats[0], cats[1]
	if first.NextHref() != hrefFor(1) {
		t.Fatalf("first catalog next: %q", first.NextHref())
	}
	for _, l := range first.Links {
		if l.Rel == "prev" {
			t.Fatalf("first catalog must not carry prev")
		}
	}

	var prev string
	for _, l := range second.Links {
		if l.Rel == "prev" {
			prev = l.Href
		}
	}
	if prev != hrefFor(0) {
		t.Fatalf("second catalog prev: %q", prev)
	}
	if second.NextHref() != "" {
		t.Fatalf("last catalog must not carry next")
	}
	if len(first.ItemLinks()) != 1 || len(second.ItemLinks()) != 1 {
		t.Fatalf("items split unevenly: %d/%d", len(first.ItemLinks()), len(second.ItemLinks()))
	}
}

func TestBuildPagedCatalogsEmpty(t *testing.T) {
	cats := BuildPagedCatalogs("agg", "aggregate input", nil, 5, hrefFor)
	if len(cats) != 1 {
		t.Fatalf("expected a single empty catalog, got %d", len(cats))
	}
	if len(cats[0].ItemLinks()) != 0 {
		t.Fatalf("expected no items")
	}
}
