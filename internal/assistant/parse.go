package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/listings"
	"github.com/Bossianity/Project-WAPi/internal/models"
)

// Markers recognized in model output.
const (
	MarkerImage      = "[ACTION_SEND_IMAGE_VIA_URL]"
	MarkerGallery    = listings.MarkerGallery
	MarkerVideo      = listings.MarkerVideo
	MarkerUnanswered = "[ACTION_NOTIFY_UNANSWERED_QUERY]"
	markerEmail      = "[ACTION_SEND_EMAIL_CONFIRMATION]"
)

var (
	// ErrEmptyResponse is returned when nothing is left after removing markers.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMalformedAction is returned for an action marker without its payload.
	ErrMalformedAction = errors.New("malformed action block")
)

// ParseActions turns raw model output into a result.
//
// Grammar, one item per line:
//
//	[ACTION_SEND_IMAGE_GALLERY]  followed by one or more http(s) URLs and an optional caption line
//	[ACTION_SEND_IMAGE_VIA_URL]  followed by one http(s) URL and a caption line
//	[ACTION_SEND_VIDEO_LINK]     followed by one URL, kept inline in the text
//
// [ACTION_NOTIFY_UNANSWERED_QUERY] may appear anywhere; it is removed and
// sets Unanswered. Any other output is plain text.
func ParseActions(raw string) (models.Result, error) {
	unanswered := strings.Contains(raw, MarkerUnanswered)
	raw = strings.ReplaceAll(raw, MarkerUnanswered, "")
	raw = strings.ReplaceAll(raw, markerEmail, "")

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var text []string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch line {
		case MarkerGallery:
			urls, caption, err := readGallery(lines[i+1:])
			if err != nil {
				return models.Result{}, err
			}
			if caption == "" {
				caption = strings.TrimSpace(strings.Join(text, "\n"))
			}
			r := models.GalleryResult(urls, caption)
			r.Unanswered = unanswered
			return r, nil
		case MarkerImage:
			if i+2 >= len(lines) {
				return models.Result{}, fmt.Errorf("%w: image needs url and caption", ErrMalformedAction)
			}
			url := strings.TrimSpace(lines[i+1])
			if !isHTTP(url) {
				return models.Result{}, fmt.Errorf("%w: image url %q", ErrMalformedAction, url)
			}
			r := models.ImageResult(url, strings.TrimSpace(lines[i+2]))
			r.Unanswered = unanswered
			return r, nil
		case MarkerVideo:
			// The link line that follows stays in the text.
			continue
		}
		text = append(text, lines[i])
	}

	body := strings.TrimSpace(strings.Join(text, "\n"))
	if body == "" {
		return models.Result{}, ErrEmptyResponse
	}
	r := models.TextResult(body)
	r.Unanswered = unanswered
	return r, nil
}

func readGallery(lines []string) ([]string, string, error) {
	var urls []string
	caption := ""
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if len(urls) > 0 {
				break
			}
			continue
		}
		if isHTTP(l) {
			urls = append(urls, l)
			continue
		}
		caption = l
		break
	}
	if len(urls) == 0 {
		return nil, "", fmt.Errorf("%w: gallery without urls", ErrMalformedAction)
	}
	return urls, caption, nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

type transition struct {
	ResponseText string `json:"response_text"`
	NextState    string `json:"next_state"`
}

// ParseTransition decodes the state machine JSON contract. The next state
// must be one of allowed or the general inquiry state. Keys other than
// response_text and next_state are rejected.
func ParseTransition(raw string, allowed []string) (models.Result, error) {
	var t transition
	dec := json.NewDecoder(strings.NewReader(stripFences(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return models.Result{}, fmt.Errorf("decode transition: %w", err)
	}
	if dec.More() {
		return models.Result{}, errors.New("decode transition: trailing data after object")
	}
	unanswered := strings.Contains(t.ResponseText, MarkerUnanswered)
	text := strings.TrimSpace(strings.ReplaceAll(t.ResponseText, MarkerUnanswered, ""))
	if text == "" {
		return models.Result{}, ErrEmptyResponse
	}
	next := strings.TrimSpace(t.NextState)
	ok := next == string(models.StateGeneralInquiry)
	for _, s := range allowed {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		return models.Result{}, fmt.Errorf("unknown next_state %q", next)
	}
	r := models.TransitionResult(text, models.StateLabel(next))
	r.Unanswered = unanswered
	return r, nil
}

// stripFences removes a surrounding ``` or ```json code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
