package assistant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

func TestParseActionsText(t *testing.T) {
	got, err := ParseActions("  Hello there.  \n")
	require.NoError(t, err)
	assert.Equal(t, models.TextResult("Hello there."), got)
}

func TestParseActionsGallery(t *testing.T) {
	raw := "Here are some photos:\n" + MarkerGallery + "\nhttps://x/1.jpg\nhttps://x/2.jpg\nMarina Villa\n"
	got, err := ParseActions(raw)
	require.NoError(t, err)
	assert.Equal(t, models.ResultGallery, got.Kind)
	assert.Equal(t, []string{"https://x/1.jpg", "https://x/2.jpg"}, got.URLs)
	assert.Equal(t, "Marina Villa", got.Caption)
}

func TestParseActionsGalleryCaptionFromPreface(t *testing.T) {
	got, err := ParseActions("Photos of the villa\n" + MarkerGallery + "\nhttps://x/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Photos of the villa", got.Caption)
}

func TestParseActionsImage(t *testing.T) {
	got, err := ParseActions(MarkerImage + "\nhttps://x/a.jpg\nThe lobby\n" + MarkerUnanswered)
	require.NoError(t, err)
	assert.Equal(t, models.ResultImage, got.Kind)
	assert.Equal(t, "https://x/a.jpg", got.URL())
	assert.Equal(t, "The lobby", got.Caption)
	assert.True(t, got.Unanswered)
}

func TestParseActionsVideoStaysInline(t *testing.T) {
	got, err := ParseActions("Watch the tour:\n" + MarkerVideo + "\nhttps://x/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, "Watch the tour:\nhttps://x/v.mp4", got.Text)
}

func TestParseActionsMalformed(t *testing.T) {
	tests := map[string]string{
		"image without caption": MarkerImage + "\nhttps://x/a.jpg",
		"image bad url":         MarkerImage + "\nnot-a-url\ncaption",
		"gallery without urls":  MarkerGallery + "\ncaption only",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseActions(raw)
			assert.True(t, errors.Is(err, ErrMalformedAction), "got %v", err)
		})
	}

	_, err := ParseActions(MarkerUnanswered + "  ")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestParseTransition(t *testing.T) {
	got, err := ParseTransition(`{"response_text": "ok `+MarkerUnanswered+`", "next_state": "GENERAL_INQUIRY"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateGeneralInquiry, got.NextState)
	assert.Equal(t, "ok", got.Text)
	assert.True(t, got.Unanswered)

	_, err = ParseTransition(`{"response_text": "", "next_state": "INITIAL"}`, []string{"INITIAL"})
	assert.True(t, errors.Is(err, ErrEmptyResponse))

	_, err = ParseTransition(`{"response_text": "x", "next_state": "ELSEWHERE"}`, []string{"INITIAL"})
	assert.Error(t, err)

	_, err = ParseTransition(`plain words`, nil)
	assert.Error(t, err)
}

func TestParseTransitionRejectsExtraKeys(t *testing.T) {
	_, err := ParseTransition(`{"response_text": "hi", "next_state": "INITIAL", "actions": []}`, []string{"INITIAL"})
	assert.ErrorContains(t, err, `unknown field "actions"`)

	_, err = ParseTransition(`{"response_text": "hi", "next_state": "INITIAL"} {"response_text": "again"}`, []string{"INITIAL"})
	assert.Error(t, err)

	got, err := ParseTransition("```json\n{\"response_text\": \"hi\", \"next_state\": \"INITIAL\"}\n```", []string{"INITIAL"})
	require.NoError(t, err)
	assert.Equal(t, models.TransitionResult("hi", models.StateInitial), got)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(` {"a":1} `))
}
