package bookstore

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mybibliotheca/libris/internal/book"
)

// parseOzone handles ozone.bg product pages: the title sits in the product
// header and the details are a table of characteristic rows.
func parseOzone(doc *goquery.Document, pageURL string) *book.Candidate {
	cand := &book.Candidate{}

	cand.Title = firstText(doc, "h1.product-title", ".product-detail h1", "h1")
	cand.Description = firstText(doc, "#description .description-text", ".product-description")

	doc.Find(".characteristics-row, table.characteristics tr").Each(func(_ int, row *goquery.Selection) {
		label := rowText(row, ".characteristics-label, td:first-child, th")
		value := rowText(row, ".characteristics-value, td:last-child")
		applyLabeledField(cand, label, value)
	})

	if src, ok := doc.Find(".product-image img, img.main-image").First().Attr("src"); ok {
		cand.CoverURL = resolveURL(pageURL, src)
	}
	return cand
}

// parseCiela handles ciela.com product pages: details are a definition-style
// list with bolded labels.
func parseCiela(doc *goquery.Document, pageURL string) *book.Candidate {
	cand := &book.Candidate{}

	cand.Title = firstText(doc, "h1.page-title", "h1.product-name", "h1")
	cand.Description = firstText(doc, ".product.attribute.description", "#product-description")

	doc.Find(".product-info-attributes li, .additional-attributes tr").Each(func(_ int, row *goquery.Selection) {
		label := rowText(row, "strong, .label, th")
		value := rowText(row, "span, .value, td")
		if value == "" {
			// Some rows are "Label: value" in one element.
			full := strings.TrimSpace(row.Text())
			if idx := strings.Index(full, ":"); idx > 0 {
				label, value = full[:idx], full[idx+1:]
			}
		}
		applyLabeledField(cand, label, value)
	})

	if src, ok := doc.Find(".gallery-placeholder img, .product-image-main img").First().Attr("src"); ok {
		cand.CoverURL = resolveURL(pageURL, src)
	}
	return cand
}

// parseHelikon handles helikon.bg product pages, which carry itemprop
// microdata for the core fields plus a parameter table.
func parseHelikon(doc *goquery.Document, pageURL string) *book.Candidate {
	cand := &book.Candidate{}

	cand.Title = firstText(doc, "h1[itemprop=name]", "h1.book-title", "h1")
	cand.Author = firstText(doc, "[itemprop=author]", ".book-author a")
	cand.Description = firstText(doc, "[itemprop=description]", ".book-description")

	doc.Find("table.product-params tr, .book-details tr").Each(func(_ int, row *goquery.Selection) {
		label := rowText(row, "td:first-child, th")
		value := rowText(row, "td:last-child")
		applyLabeledField(cand, label, value)
	})

	if src, ok := doc.Find("img[itemprop=image], .book-cover img").First().Attr("src"); ok {
		cand.CoverURL = resolveURL(pageURL, src)
	}
	return cand
}

// firstText returns the trimmed text of the first selector that matches
// anything.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func rowText(row *goquery.Selection, selector string) string {
	return strings.TrimSpace(row.Find(selector).First().Text())
}
