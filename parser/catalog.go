package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Wisny97/Projet-1/models"
)

const (
	sidebarSelector  = "div.side_categories"
	categorySelector = "div.side_categories ul li ul li a"
	teaserSelector   = "article.product_pod h3 a"
	nextSelector     = "li.next a"
)

// ParseDocument parses raw markup into a queryable document.
func ParseDocument(pageURL string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: err}
	}
	return doc, nil
}

// ParseCategories lists the sidebar's leaf category links in document order.
func ParseCategories(doc *goquery.Document, homeURL string) ([]models.Category, error) {
	if doc.Find(sidebarSelector).Length() == 0 {
		return nil, &StructureError{URL: homeURL, Anchor: sidebarSelector}
	}

	var (
		categories []models.Category
		firstErr   error
	)
	doc.Find(categorySelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		abs, err := Resolve(homeURL, href)
		if err != nil {
			firstErr = &ParseError{URL: homeURL, Field: "category link", Value: href, Err: err}
			return false
		}
		categories = append(categories, models.Category{
			Name:       strings.TrimSpace(s.Text()),
			ListingURL: abs,
		})
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return categories, nil
}

// ParseListing returns the product links of one listing page in document
// order and the absolute address of the next page ("" on the last page).
func ParseListing(doc *goquery.Document, pageURL string) ([]string, string, error) {
	var (
		links    []string
		firstErr error
	)
	doc.Find(teaserSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		abs, err := Resolve(pageURL, href)
		if err != nil {
			firstErr = &ParseError{URL: pageURL, Field: "product link", Value: href, Err: err}
			return false
		}
		links = append(links, abs)
		return true
	})
	if firstErr != nil {
		return nil, "", firstErr
	}
	if len(links) == 0 {
		return nil, "", &StructureError{URL: pageURL, Anchor: teaserSelector}
	}

	href, ok := doc.Find(nextSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return links, "", nil
	}
	next, err := Resolve(pageURL, href)
	if err != nil {
		return nil, "", &ParseError{URL: pageURL, Field: "next link", Value: href, Err: err}
	}
	return links, next, nil
}

// Resolve makes href absolute against base.
func Resolve(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}
