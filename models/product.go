// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strconv"
)

// Column names understood by ProductRecord.Row.
const (
	ColumnURL          = "product_page_url"
	ColumnCode         = "universal_product_code"
	ColumnTitle        = "title"
	ColumnPriceInclTax = "price_including_tax"
	ColumnPriceExclTax = "price_excluding_tax"
	ColumnStock        = "number_available"
	ColumnDescription  = "product_description"
	ColumnCategory     = "category"
	ColumnRating       = "review_rating"
	ColumnImageURL     = "image_url"
)

// DefaultColumns is the fixed output column order.
var DefaultColumns = []string{
	ColumnURL,
	ColumnCode,
	ColumnTitle,
	ColumnPriceInclTax,
	ColumnPriceExclTax,
	ColumnStock,
	ColumnDescription,
	ColumnCategory,
	ColumnRating,
	ColumnImageURL,
}

// Category is one entry of the catalog's sidebar navigation.
type Category struct {
	Name       string `json:"name"`
	ListingURL string `json:"listing_url"`
}

// ProductRecord is the typed result of extracting one product page.
// Rating and ImageURL are nil when the page does not carry them.
type ProductRecord struct {
	SourceURL    string  `json:"product_page_url"`
	Code         string  `json:"universal_product_code"`
	Title        string  `json:"title"`
	PriceInclTax float64 `json:"price_including_tax"`
	PriceExclTax float64 `json:"price_excluding_tax"`
	StockCount   int     `json:"number_available"`
	Description  string  `json:"product_description"`
	CategoryName string  `json:"category"`
	Rating       *int    `json:"review_rating"`
	ImageURL     *string `json:"image_url"`
}

// IsColumn reports whether name is a known output column.
func IsColumn(name string) bool {
	for _, c := range DefaultColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Value renders a single column. Absent optional fields render as "".
func (r *ProductRecord) Value(column string) (string, error) {
	switch column {
	case ColumnURL:
		return r.SourceURL, nil
	case ColumnCode:
		return r.Code, nil
	case ColumnTitle:
		return r.Title, nil
	case ColumnPriceInclTax:
		return formatPrice(r.PriceInclTax), nil
	case ColumnPriceExclTax:
		return formatPrice(r.PriceExclTax), nil
	case ColumnStock:
		return strconv.Itoa(r.StockCount), nil
	case ColumnDescription:
		return r.Description, nil
	case ColumnCategory:
		return r.CategoryName, nil
	case ColumnRating:
		if r.Rating == nil {
			return "", nil
		}
		return strconv.Itoa(*r.Rating), nil
	case ColumnImageURL:
		if r.ImageURL == nil {
			return "", nil
		}
		return *r.ImageURL, nil
	default:
		return "", fmt.Errorf("unknown column %q", column)
	}
}

// Row renders the record in the given column order.
func (r *ProductRecord) Row(columns []string) ([]string, error) {
	row := make([]string, 0, len(columns))
	for _, column := range columns {
		value, err := r.Value(column)
		if err != nil {
			return nil, err
		}
		row = append(row, value)
	}
	return row, nil
}

// Fields returns the record as a column-keyed map for structured sinks.
// Absent optional values are nil.
func (r *ProductRecord) Fields(columns []string) (map[string]any, error) {
	out := make(map[string]any, len(columns))
	for _, column := range columns {
		switch column {
		case ColumnPriceInclTax:
			out[column] = r.PriceInclTax
		case ColumnPriceExclTax:
			out[column] = r.PriceExclTax
		case ColumnStock:
			out[column] = r.StockCount
		case ColumnRating:
			if r.Rating != nil {
				out[column] = *r.Rating
			} else {
				out[column] = nil
			}
		case ColumnImageURL:
			if r.ImageURL != nil {
				out[column] = *r.ImageURL
			} else {
				out[column] = nil
			}
		default:
			value, err := r.Value(column)
			if err != nil {
				return nil, err
			}
			out[column] = value
		}
	}
	return out, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
