package listings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

type fakeReader struct {
	rows [][]string
	err  error
	rng  string
}

func (f *fakeReader) Values(ctx context.Context, id, rng string) ([][]string, error) {
	f.rng = rng
	return f.rows, f.err
}

func num(f float64) *float64 { return &f }

var sheetRows = [][]string{
	{"PropertyID", "Title", "Price_AED", "Bedrooms", "city", "area", "Description", "img1", "img2", "VideoURL"},
	{"P1", "Marina Villa", "1,200,000", "4", "Dubai", "Dubai Marina", "Sea view", "https://x/1.jpg", "https://x/2.jpg", ""},
	{"P2", "Desert Flat", "n/a", "2", "Abu Dhabi", "Khalifa City", "", "", "", "https://x/v.mp4"},
	{"", "", "", "", "", "", "", "", "", ""},
	{"P3", "Short Row"},
}

func TestParseRowsAliasesAndCoercion(t *testing.T) {
	got := ParseRows(sheetRows)
	require.Len(t, got, 3)

	assert.Equal(t, "Marina Villa", got[0].Name)
	assert.Equal(t, 1200000.0, *got[0].Price)
	assert.Equal(t, 4.0, *got[0].Bedrooms)
	assert.Equal(t, "Dubai Marina", got[0].Neighborhood)
	assert.Equal(t, []string{"https://x/1.jpg", "https://x/2.jpg"}, got[0].ImageURLs)
	assert.Equal(t, 2, got[0].Row)

	assert.Nil(t, got[1].Price, "unparsable price must be absent, not zero")
	assert.Equal(t, "https://x/v.mp4", got[1].VideoURL)

	assert.Equal(t, "Short Row", got[2].Name)
	assert.Equal(t, 5, got[2].Row)
}

func TestParseRowsHeaderOnly(t *testing.T) {
	assert.Nil(t, ParseRows([][]string{{"Title"}}))
	assert.Nil(t, ParseRows(nil))
}

func TestFilterPriceInclusive(t *testing.T) {
	rows := []models.Listing{
		{Name: "a", WeekdayPrice: num(500)},
		{Name: "b", WeekdayPrice: num(1500)},
	}
	got := Filter(rows, map[string]models.ListingFilter{
		"WeekdayPrice": {Operator: "<", Value: 1000.0},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)

	got = Filter(rows, map[string]models.ListingFilter{
		"WeekdayPrice": {Operator: "<", Value: 500.0},
	})
	require.Len(t, got, 1, "boundary value is included")

	got = Filter(rows, map[string]models.ListingFilter{
		"WeekdayPrice": {Operator: ">", Value: "1500"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestFilterExcludesAbsentNumbers(t *testing.T) {
	rows := []models.Listing{{Name: "priced", Price: num(10)}, {Name: "unpriced"}}
	got := Filter(rows, map[string]models.ListingFilter{"Price_AED": {Operator: "<", Value: 100}})
	require.Len(t, got, 1)
	assert.Equal(t, "priced", got[0].Name)
}

func TestFilterTextSubstringIgnoresOperator(t *testing.T) {
	rows := []models.Listing{
		{Name: "Marina Villa", City: "Dubai"},
		{Name: "Desert Flat", City: "Abu Dhabi"},
	}
	got := Filter(rows, map[string]models.ListingFilter{"city": {Operator: "=", Value: "dub"}})
	require.Len(t, got, 1)
	assert.Equal(t, "Marina Villa", got[0].Name)

	got = Filter(rows, map[string]models.ListingFilter{"Title": {Operator: "<", Value: "VILLA"}})
	require.Len(t, got, 1)
}

func TestFilterSkipsUnknownAndInvalid(t *testing.T) {
	rows := []models.Listing{{Name: "a", Price: num(1)}, {Name: "b", Price: num(2)}}
	got := Filter(rows, map[string]models.ListingFilter{
		"PoolSize": {Operator: "=", Value: 3},
		"Price":    {Operator: "<", Value: "cheap"},
	})
	assert.Len(t, got, 2)
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	rows := []models.Listing{{Name: "a", Price: num(1)}, {Name: "b", Price: num(2)}}
	Filter(rows, map[string]models.ListingFilter{"Price": {Operator: ">", Value: 2}})
	assert.Equal(t, "a", rows[0].Name)
	assert.Equal(t, "b", rows[1].Name)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, NoMatchesContext, FormatContext(nil, 5))

	ctx := FormatContext(ParseRows(sheetRows), 5)
	assert.True(t, strings.HasPrefix(ctx, ContextHeader+"\n"))
	assert.Contains(t, ctx, "Title: Marina Villa\n")
	assert.Contains(t, ctx, "Location: Dubai Marina, Dubai\n")
	assert.Contains(t, ctx, MarkerGallery+"\nhttps://x/1.jpg\nhttps://x/2.jpg\nMarina Villa\n")
	assert.Contains(t, ctx, MarkerVideo+"\nhttps://x/v.mp4\nDesert Flat\n")
	assert.Contains(t, ctx, "Description: No description available.")
}

func TestFormatContextLimit(t *testing.T) {
	var rows []models.Listing
	for i := 0; i < 8; i++ {
		rows = append(rows, models.Listing{Name: "p"})
	}
	assert.Equal(t, 5, strings.Count(FormatContext(rows, 5), "---\n"))
}

func TestSourceLoad(t *testing.T) {
	r := &fakeReader{rows: sheetRows}
	src := NewSource(r, "sheet-id", "")
	got, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "'Properties'", r.rng)

	src = NewSource(&fakeReader{err: errors.New("403")}, "sheet-id", "Listings")
	_, err = src.Load(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = NewSource(nil, "", "").Load(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestIsPropertyQuery(t *testing.T) {
	assert.True(t, IsPropertyQuery("Any villas AVAILABLE in JVC?"))
	assert.True(t, IsPropertyQuery("أبحث عن شقة"))
	assert.False(t, IsPropertyQuery("what are your office hours"))
}
