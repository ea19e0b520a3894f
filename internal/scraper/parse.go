package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// Prefecture is one entry of the top page prefecture list
type Prefecture struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

var coordinatePattern = regexp.MustCompile(`www\.google\.com/maps/.+\?q=(.*?),(.*?)&`)

// resolve makes href absolute against base
func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// prefectureID is the fourth path segment: /stations/search/<id>/...
func prefectureID(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// stationID is the last path segment of a station page
func stationID(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	return p[strings.LastIndex(p, "/")+1:]
}

func parsePrefectures(doc *goquery.Document, base *url.URL) []Prefecture {
	var prefs []Prefecture
	doc.Find(".station__list dl dd ul li a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		uri := resolve(base, href)
		prefs = append(prefs, Prefecture{
			ID:   prefectureID(uri),
			Name: NormalizeText(a.Text()),
			URI:  uri,
		})
	})
	return prefs
}

// parseStationList returns the station links on one list page and the
// next page link, if any
func parseStationList(doc *goquery.Document, base *url.URL) (links []string, next string) {
	doc.Find(".searchList ul li a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			links = append(links, resolve(base, href))
		}
	})
	if href, ok := doc.Find(".paging .next a").First().Attr("href"); ok && href != "" {
		next = resolve(base, href)
	}
	return links, next
}

// parseStation fills a station record from a detail page
func parseStation(doc *goquery.Document, rawHTML string) models.Station {
	s := models.Station{Lat: models.NoCoordinate, Lng: models.NoCoordinate}

	doc.Find(".info dl").Each(func(_ int, dl *goquery.Selection) {
		children := dl.Children()
		if children.Length() < 2 {
			return
		}
		key := NormalizeText(children.Eq(0).Text())
		valueElement := children.Eq(1)
		value := NormalizeText(valueElement.Text())

		switch key {
		case "道の駅名":
			s.Name = value
		case "所在地":
			s.Address = value
		case "TEL":
			s.Tel = NormalizeText(valueElement.Find("a").First().Text())
		case "営業時間":
			s.Hours = value
		case "マップコード":
			s.Mapcode = value
		}
	})

	if m := coordinatePattern.FindStringSubmatch(rawHTML); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat == nil && errLng == nil {
			s.Lat = strconv.FormatFloat(lat, 'f', -1, 64)
			s.Lng = strconv.FormatFloat(lng, 'f', -1, 64)
		}
	}
	return s
}
