package models

// Listing is one property row from the listings spreadsheet. Numeric fields
// are pointers so that a blank or unparsable cell stays distinguishable from
// zero.
type Listing struct {
	Row          int      `json:"row"`
	PropertyID   string   `json:"property_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	WeekdayPrice *float64 `json:"weekday_price,omitempty"`
	WeekendPrice *float64 `json:"weekend_price,omitempty"`
	MonthlyPrice *float64 `json:"monthly_price,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Guests       *float64 `json:"guests,omitempty"`
	Bedrooms     *float64 `json:"bedrooms,omitempty"`
	City         string   `json:"city,omitempty"`
	Emirate      string   `json:"emirate,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Developer    string   `json:"developer,omitempty"`
	Amenities    string   `json:"amenities,omitempty"`
	BookingLink  string   `json:"booking_link,omitempty"`
	VideoURL     string   `json:"video_url,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

// Filter operators accepted from the intent pre-pass.
const (
	OpLessEqual    = "<"
	OpGreaterEqual = ">"
	OpEqual        = "="
)

// ListingFilter is one column constraint extracted from a user request.
type ListingFilter struct {
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}
