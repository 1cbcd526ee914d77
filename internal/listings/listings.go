// Package listings loads property rows from the listings spreadsheet, filters
// them by the criteria extracted from a user request and renders them as
// model context.
package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/googleapi"
	"github.com/Bossianity/Project-WAPi/internal/models"
)

// DefaultSheetName is the listings tab used when none is configured.
const DefaultSheetName = "Properties"

// Context texts handed to the model.
const (
	ContextHeader      = "Relevant Information Found:"
	NoMatchesContext   = ContextHeader + "\nNo properties found matching your criteria. Please try different keywords or filters."
	UnavailableContext = ContextHeader + "\nI was unable to access the property listings at this moment. Please try again shortly."
)

// Action markers the model may copy into its answer.
const (
	MarkerGallery = "[ACTION_SEND_IMAGE_GALLERY]"
	MarkerVideo   = "[ACTION_SEND_VIDEO_LINK]"
)

// ErrUnavailable is returned when the sheet cannot be read or is not
// configured.
var ErrUnavailable = errors.New("property listings unavailable")

// ValueReader is the spreadsheet read used by Source.
type ValueReader interface {
	Values(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
}

// Source reads the listings sheet. It holds no cache; every Load re-fetches.
type Source struct {
	reader    ValueReader
	sheetID   string
	sheetName string
}

// NewSource creates a Source. A nil reader or empty sheet ID yields a
// Source that reports ErrUnavailable.
func NewSource(reader ValueReader, sheetID, sheetName string) *Source {
	if sheetName == "" || strings.Contains(sheetName, "docs.google.com/spreadsheets/d/") {
		if sheetName != "" {
			slog.Warn("listings.NewSource: sheet name looks like a URL, using default", "sheetName", sheetName, "default", DefaultSheetName)
		}
		sheetName = DefaultSheetName
	}
	return &Source{reader: reader, sheetID: sheetID, sheetName: sheetName}
}

// Configured reports whether a listings sheet is set up.
func (s *Source) Configured() bool {
	return s != nil && s.reader != nil && s.sheetID != ""
}

// Load fetches and parses every listing row.
func (s *Source) Load(ctx context.Context) ([]models.Listing, error) {
	if !s.Configured() {
		return nil, ErrUnavailable
	}
	rows, err := s.reader.Values(ctx, s.sheetID, googleapi.QuoteRange(s.sheetName, ""))
	if err != nil {
		slog.Error("Source.Load: read failed", "sheetID", s.sheetID, "sheetName", s.sheetName, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	listings := ParseRows(rows)
	slog.Debug("Source.Load: listings loaded", "count", len(listings), "sheetName", s.sheetName)
	return listings, nil
}

// field identifies a Listing attribute addressable by headers and filters.
type field string

const (
	fieldPropertyID   field = "PropertyID"
	fieldName         field = "PropertyName"
	fieldDescription  field = "Description"
	fieldWeekdayPrice field = "WeekdayPrice"
	fieldWeekendPrice field = "WeekendPrice"
	fieldMonthlyPrice field = "MonthlyPrice"
	fieldPrice        field = "Price"
	fieldGuests       field = "Guests"
	fieldBedrooms     field = "Bedrooms"
	fieldCity         field = "City"
	fieldEmirate      field = "Emirate"
	fieldNeighborhood field = "Neighborhood"
	fieldDeveloper    field = "Developer"
	fieldAmenities    field = "Amenities"
	fieldBookingLink  field = "BookingLink"
	fieldVideoURL     field = "VideoURL"
	fieldImage        field = "Image"
)

// aliases maps a normalized header or filter key to its field.
var aliases = map[string]field{
	"propertyid":    fieldPropertyID,
	"id":            fieldPropertyID,
	"propertyname":  fieldName,
	"title":         fieldName,
	"name":          fieldName,
	"description":   fieldDescription,
	"weekdayprice":  fieldWeekdayPrice,
	"weekendprice":  fieldWeekendPrice,
	"monthlyprice":  fieldMonthlyPrice,
	"price":         fieldPrice,
	"priceaed":      fieldPrice,
	"guests":        fieldGuests,
	"capacity":      fieldGuests,
	"bedrooms":      fieldBedrooms,
	"beds":          fieldBedrooms,
	"city":          fieldCity,
	"emirate":       fieldEmirate,
	"neighborhood":  fieldNeighborhood,
	"neighbourhood": fieldNeighborhood,
	"area":          fieldNeighborhood,
	"developer":     fieldDeveloper,
	"amenities":     fieldAmenities,
	"bookinglink":   fieldBookingLink,
	"videourl":      fieldVideoURL,
	"video":         fieldVideoURL,
	"imageurl1":     fieldImage,
	"imageurl2":     fieldImage,
	"imageurl3":     fieldImage,
	"img1":          fieldImage,
	"img2":          fieldImage,
	"img3":          fieldImage,
}

var numericFields = map[field]bool{
	fieldWeekdayPrice: true,
	fieldWeekendPrice: true,
	fieldMonthlyPrice: true,
	fieldPrice:        true,
	fieldGuests:       true,
	fieldBedrooms:     true,
}

var textFields = map[field]bool{
	fieldCity:         true,
	fieldEmirate:      true,
	fieldNeighborhood: true,
	fieldName:         true,
	fieldDeveloper:    true,
	fieldAmenities:    true,
	fieldDescription:  true,
}

func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lookupField(key string) (field, bool) {
	f, ok := aliases[normalizeKey(key)]
	return f, ok
}

// ParseRows converts a header row plus data rows into listings. Unknown
// columns are ignored; rows with no cells are skipped.
func ParseRows(rows [][]string) []models.Listing {
	if len(rows) < 2 {
		return nil
	}
	header := make([]field, len(rows[0]))
	for i, h := range rows[0] {
		header[i], _ = lookupField(h)
	}

	var out []models.Listing
	for r, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		l := models.Listing{Row: r + 2}
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			setField(&l, header[i], strings.TrimSpace(cell))
		}
		out = append(out, l)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func setField(l *models.Listing, f field, v string) {
	if v == "" {
		return
	}
	switch f {
	case fieldPropertyID:
		l.PropertyID = v
	case fieldName:
		l.Name = v
	case fieldDescription:
		l.Description = v
	case fieldWeekdayPrice:
		l.WeekdayPrice = parseNumber(v)
	case fieldWeekendPrice:
		l.WeekendPrice = parseNumber(v)
	case fieldMonthlyPrice:
		l.MonthlyPrice = parseNumber(v)
	case fieldPrice:
		l.Price = parseNumber(v)
	case fieldGuests:
		l.Guests = parseNumber(v)
	case fieldBedrooms:
		l.Bedrooms = parseNumber(v)
	case fieldCity:
		l.City = v
	case fieldEmirate:
		l.Emirate = v
	case fieldNeighborhood:
		l.Neighborhood = v
	case fieldDeveloper:
		l.Developer = v
	case fieldAmenities:
		l.Amenities = v
	case fieldBookingLink:
		l.BookingLink = v
	case fieldVideoURL:
		l.VideoURL = v
	case fieldImage:
		if strings.HasPrefix(v, "http") {
			l.ImageURLs = append(l.ImageURLs, v)
		}
	}
}

// parseNumber accepts "1,500", "AED 900" and "2.5"; anything else is absent.
func parseNumber(s string) *float64 {
	cleaned := strings.NewReplacer(",", "", "AED", "", "aed", "", " ", "").Replace(s)
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

func numericValue(l models.Listing, f field) *float64 {
	switch f {
	case fieldWeekdayPrice:
		return l.WeekdayPrice
	case fieldWeekendPrice:
		return l.WeekendPrice
	case fieldMonthlyPrice:
		return l.MonthlyPrice
	case fieldPrice:
		return l.Price
	case fieldGuests:
		return l.Guests
	case fieldBedrooms:
		return l.Bedrooms
	}
	return nil
}

func textValue(l models.Listing, f field) string {
	switch f {
	case fieldCity:
		return l.City
	case fieldEmirate:
		return l.Emirate
	case fieldNeighborhood:
		return l.Neighborhood
	case fieldName:
		return l.Name
	case fieldDeveloper:
		return l.Developer
	case fieldAmenities:
		return l.Amenities
	case fieldDescription:
		return l.Description
	}
	return ""
}

// Filter applies every filter in turn. Numeric "<" and ">" are inclusive
// and rows without a value for a numeric filter are excluded. Text filters
// are case-insensitive substring matches whatever the operator. Unknown keys
// and unparsable numeric values skip that filter.
func Filter(rows []models.Listing, filters map[string]models.ListingFilter) []models.Listing {
	out := append([]models.Listing(nil), rows...)
	for key, flt := range filters {
		f, ok := lookupField(key)
		switch {
		case !ok || (!numericFields[f] && !textFields[f]):
			slog.Warn("listings.Filter: unknown filter key, skipping", "key", key)
			continue
		case numericFields[f]:
			v, ok := filterNumber(flt.Value)
			if !ok {
				slog.Error("listings.Filter: invalid numeric value, skipping", "key", key, "value", flt.Value)
				continue
			}
			out = keep(out, func(l models.Listing) bool {
				got := numericValue(l, f)
				if got == nil {
					return false
				}
				switch flt.Operator {
				case models.OpLessEqual:
					return *got <= v
				case models.OpGreaterEqual:
					return *got >= v
				case models.OpEqual:
					return *got == v
				}
				return true
			})
		default:
			needle := strings.ToLower(strings.TrimSpace(fmt.Sprint(flt.Value)))
			if needle == "" {
				continue
			}
			out = keep(out, func(l models.Listing) bool {
				return strings.Contains(strings.ToLower(textValue(l, f)), needle)
			})
		}
	}
	slog.Debug("listings.Filter: filtering complete", "filters", len(filters), "matches", len(out))
	return out
}

func keep(rows []models.Listing, pred func(models.Listing) bool) []models.Listing {
	out := rows[:0]
	for _, r := range rows {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func filterNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		p := parseNumber(n)
		if p == nil {
			return 0, false
		}
		return *p, true
	}
	return 0, false
}

// FormatContext renders up to max listings as the model context block.
// An empty slice yields NoMatchesContext.
func FormatContext(rows []models.Listing, max int) string {
	if len(rows) == 0 {
		return NoMatchesContext
	}
	if max > 0 && len(rows) > max {
		rows = rows[:max]
	}
	var b strings.Builder
	b.WriteString(ContextHeader)
	b.WriteString("\n")
	for _, l := range rows {
		title := orNA(l.Name)
		fmt.Fprintf(&b, "Title: %s\n", title)
		fmt.Fprintf(&b, "Location: %s\n", joinNonEmpty(", ", l.Neighborhood, l.City, l.Emirate))
		if l.Price != nil {
			fmt.Fprintf(&b, "Price: %s AED\n", formatNumber(l.Price))
		}
		if l.WeekdayPrice != nil || l.WeekendPrice != nil || l.MonthlyPrice != nil {
			fmt.Fprintf(&b, "Weekday Price: %s AED, Weekend Price: %s AED, Monthly Price: %s AED\n",
				formatNumber(l.WeekdayPrice), formatNumber(l.WeekendPrice), formatNumber(l.MonthlyPrice))
		}
		if l.Bedrooms != nil {
			fmt.Fprintf(&b, "Bedrooms: %s\n", formatNumber(l.Bedrooms))
		}
		if l.Guests != nil {
			fmt.Fprintf(&b, "Guests: %s\n", formatNumber(l.Guests))
		}
		if l.Amenities != "" {
			fmt.Fprintf(&b, "Amenities: %s\n", l.Amenities)
		}
		desc := l.Description
		if desc == "" {
			desc = "No description available."
		}
		fmt.Fprintf(&b, "Description: %s\n", desc)
		if l.BookingLink != "" {
			fmt.Fprintf(&b, "Booking Link: %s\n", l.BookingLink)
		}
		if strings.HasPrefix(l.VideoURL, "http") {
			fmt.Fprintf(&b, "%s\n%s\n%s\n", MarkerVideo, l.VideoURL, title)
		}
		if len(l.ImageURLs) > 0 {
			b.WriteString(MarkerGallery + "\n")
			for _, u := range l.ImageURLs {
				b.WriteString(u + "\n")
			}
			b.WriteString(title + "\n")
		}
		b.WriteString("---\n")
	}
	return b.String()
}

func formatNumber(f *float64) string {
	if f == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

var propertyKeywords = []string{
	"property", "properties", "apartment", "villa", "house",
	"buy", "rent", "lease", "listing", "listings", "available", "real estate",
	"شقة", "فيلا", "عقار", "إيجار", "ايجار",
}

// IsPropertyQuery is the keyword fallback used when the intent pre-pass
// does not classify a message as a property search.
func IsPropertyQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range propertyKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
