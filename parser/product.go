package parser

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Wisny97/Projet-1/models"
)

// Table labels on the product information table.
const (
	LabelUPC          = "UPC"
	LabelPriceExclTax = "Price (excl. tax)"
	LabelPriceInclTax = "Price (incl. tax)"
	LabelAvailability = "Availability"
)

const (
	titleSelector       = "h1"
	descriptionSelector = "#product_description"
	breadcrumbSelector  = "ul.breadcrumb a"
	ratingSelector      = "p.star-rating"
	imageSelector       = "div.item.active img"

	breadcrumbCategoryIndex = 2
)

// Extract turns one parsed product page into a record. Every field is read
// independently; all failures are returned joined so callers can inspect
// them with errors.As.
func Extract(doc *goquery.Document, sourceURL string) (*models.ProductRecord, error) {
	record := &models.ProductRecord{SourceURL: sourceURL}
	var errs []error

	if title := strings.TrimSpace(doc.Find(titleSelector).First().Text()); title != "" {
		record.Title = title
	} else {
		errs = append(errs, &StructureError{URL: sourceURL, Field: "title", Anchor: titleSelector})
	}

	if cell, ok := tableValue(doc, LabelUPC); ok && cell != "" {
		record.Code = cell
	} else {
		errs = append(errs, &StructureError{URL: sourceURL, Field: "code", Anchor: "th " + LabelUPC})
	}

	var err error
	if record.PriceExclTax, err = priceField(doc, sourceURL, "price_excluding_tax", LabelPriceExclTax); err != nil {
		errs = append(errs, err)
	}
	if record.PriceInclTax, err = priceField(doc, sourceURL, "price_including_tax", LabelPriceInclTax); err != nil {
		errs = append(errs, err)
	}

	if cell, ok := tableValue(doc, LabelAvailability); ok {
		record.StockCount = ParseStock(cell)
	}

	record.Description = description(doc)

	crumbs := doc.Find(breadcrumbSelector)
	if name := strings.TrimSpace(crumbs.Eq(breadcrumbCategoryIndex).Text()); name != "" {
		record.CategoryName = name
	} else {
		errs = append(errs, &StructureError{URL: sourceURL, Field: "category", Anchor: breadcrumbSelector})
	}

	if class, ok := doc.Find(ratingSelector).First().Attr("class"); ok {
		if n, found := RatingFromClasses(class); found {
			rating := n
			record.Rating = &rating
		}
	}

	if src, ok := doc.Find(imageSelector).First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		abs, err := Resolve(sourceURL, src)
		if err != nil {
			errs = append(errs, &ParseError{URL: sourceURL, Field: "image_url", Value: src, Err: err})
		} else {
			record.ImageURL = &abs
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return record, nil
}

func priceField(doc *goquery.Document, sourceURL, field, label string) (float64, error) {
	cell, ok := tableValue(doc, label)
	if !ok {
		return 0, &StructureError{URL: sourceURL, Field: field, Anchor: "th " + label}
	}
	value, err := ParsePrice(cell)
	if err != nil {
		return 0, &ParseError{URL: sourceURL, Field: field, Value: cell, Err: err}
	}
	return value, nil
}

// tableValue returns the trimmed text of the td following the th labelled label.
func tableValue(doc *goquery.Document, label string) (string, bool) {
	header := doc.Find("th").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == label
	}).First()
	if header.Length() == 0 {
		return "", false
	}
	cell := header.NextAllFiltered("td").First()
	if cell.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(cell.Text()), true
}

func description(doc *goquery.Document) string {
	anchor := doc.Find(descriptionSelector).First()
	if anchor.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(anchor.NextAllFiltered("p").First().Text())
}
