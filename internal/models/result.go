package models

import (
	"fmt"
	"strings"
)

// ResultKind tags the variant held by a Result.
type ResultKind string

const (
	ResultText       ResultKind = "text"
	ResultImage      ResultKind = "image"
	ResultGallery    ResultKind = "gallery"
	ResultTransition ResultKind = "state_transition"
)

// Result is the parsed outcome of one assistant invocation. Exactly the
// fields for its Kind are populated.
type Result struct {
	Kind ResultKind `json:"kind"`

	// Text holds the reply for text results and the response_text of state
	// transitions.
	Text string `json:"text,omitempty"`

	// URLs holds one image for image results and one or more for galleries.
	URLs    []string `json:"urls,omitempty"`
	Caption string   `json:"caption,omitempty"`

	NextState StateLabel `json:"next_state,omitempty"`

	// Unanswered is set when the model flagged the question as not covered
	// by the available context.
	Unanswered bool `json:"unanswered,omitempty"`
}

// TextResult builds a plain text result.
func TextResult(text string) Result {
	return Result{Kind: ResultText, Text: text}
}

// ImageResult builds a single image result.
func ImageResult(url, caption string) Result {
	return Result{Kind: ResultImage, URLs: []string{url}, Caption: caption}
}

// GalleryResult builds a multi-image result.
func GalleryResult(urls []string, caption string) Result {
	return Result{Kind: ResultGallery, URLs: append([]string(nil), urls...), Caption: caption}
}

// TransitionResult builds a state machine result.
func TransitionResult(text string, next StateLabel) Result {
	return Result{Kind: ResultTransition, Text: text, NextState: next}
}

// URL returns the first image URL, if any.
func (r Result) URL() string {
	if len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[0]
}

// Flatten renders the result as the text stored in conversation history.
func (r Result) Flatten() string {
	switch r.Kind {
	case ResultImage:
		return fmt.Sprintf("[Sent Image: %s with caption: %s]", r.URL(), r.Caption)
	case ResultGallery:
		return fmt.Sprintf("[Sent Images: %s with caption: %s]", strings.Join(r.URLs, ", "), r.Caption)
	default:
		return r.Text
	}
}
