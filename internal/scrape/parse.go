package scrape

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const defaultCurrency = "USD"

// symbolCurrencies maps price symbols to ISO codes. Order matters for
// strings that contain several symbols.
var symbolCurrencies = []struct {
	symbol string
	code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₽", "RUB"},
}

var numberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// page is what the parser collects in one pass over the document.
type page struct {
	title  string
	meta   map[string]string // first content per property, name or itemprop
	ldJSON []string
}

// Parse extracts metadata from an HTML document. Title prefers og:title
// over <title>. Price prefers JSON-LD offers, then og:price:amount, then a
// price meta tag.
func Parse(r io.Reader) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	p := &page{meta: make(map[string]string)}
	p.walk(doc)

	res := &Result{}
	if t := p.meta["og:title"]; t != "" {
		res.Title = &t
	} else if t := strings.TrimSpace(p.title); t != "" {
		res.Title = &t
	}
	if img := p.meta["og:image"]; img != "" {
		res.ImageURL = &img
	}

	price, currency, ok := p.ldPrice()
	if !ok {
		price, currency, ok = p.ogPrice()
	}
	if !ok {
		price, currency, ok = p.metaPrice()
	}
	if ok {
		res.PriceCents = &price
		res.Currency = &currency
	}

	return res, nil
}

func (p *page) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if p.title == "" && n.FirstChild != nil {
				p.title = n.FirstChild.Data
			}
		case atom.Meta:
			content := attr(n, "content")
			for _, key := range []string{"property", "name", "itemprop"} {
				if k := attr(n, key); k != "" {
					if _, seen := p.meta[k]; !seen && content != "" {
						p.meta[k] = content
					}
				}
			}
		case atom.Script:
			if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
				p.ldJSON = append(p.ldJSON, n.FirstChild.Data)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

// ldPrice reads the offers of the first JSON-LD block that has a price.
func (p *page) ldPrice() (int64, string, bool) {
	for _, raw := range p.ldJSON {
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		offer := findOffer(data)
		if offer == nil {
			continue
		}
		cents, ok := toCents(fmt.Sprint(offer["price"]))
		if !ok {
			continue
		}
		currency, _ := offer["priceCurrency"].(string)
		if currency == "" {
			currency = defaultCurrency
		}
		return cents, strings.ToUpper(currency), true
	}
	return 0, "", false
}

func findOffer(data any) map[string]any {
	switch v := data.(type) {
	case []any:
		for _, node := range v {
			if o := findOffer(node); o != nil {
				return o
			}
		}
	case map[string]any:
		offers, ok := v["offers"]
		if !ok {
			offers = v["Offers"]
		}
		if list, ok := offers.([]any); ok && len(list) > 0 {
			offers = list[0]
		}
		if o, ok := offers.(map[string]any); ok {
			return o
		}
		if graph, ok := v["@graph"].([]any); ok {
			return findOffer(graph)
		}
	}
	return nil
}

func (p *page) ogPrice() (int64, string, bool) {
	cents, ok := toCents(p.meta["og:price:amount"])
	if !ok {
		cents, ok = toCents(p.meta["product:price:amount"])
	}
	if !ok {
		return 0, "", false
	}
	currency := p.meta["og:price:currency"]
	if currency == "" {
		currency = p.meta["product:price:currency"]
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return cents, strings.ToUpper(currency), true
}

func (p *page) metaPrice() (int64, string, bool) {
	text := p.meta["price"]
	if text == "" {
		return 0, "", false
	}
	return parsePriceText(text)
}

// parsePriceText reads prices such as "$29.99", "29.99 USD" or "€1,500".
func parsePriceText(text string) (int64, string, bool) {
	currency := defaultCurrency
	for _, sc := range symbolCurrencies {
		if strings.Contains(text, sc.symbol) {
			currency = sc.code
			break
		}
	}

	num := numberRe.FindString(strings.ReplaceAll(text, ",", ""))
	cents, ok := toCents(num)
	if !ok {
		return 0, "", false
	}
	return cents, currency, true
}

// toCents converts a decimal amount string to minor units.
func toCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "<nil>" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
