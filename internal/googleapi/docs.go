package googleapi

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ClientOption is re-exported so callers need not import option directly.
type ClientOption = option.ClientOption

// Documents fetches Google Docs and Sheets content by Drive file ID.
type Documents struct {
	drive  *drive.Service
	docs   *docs.Service
	sheets *Sheets
}

// NewDocuments creates the Drive, Docs and Sheets services sharing opts.
func NewDocuments(ctx context.Context, opts ...ClientOption) (*Documents, error) {
	dr, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	dc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docs service: %w", err)
	}
	sh, err := NewSheets(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Documents{drive: dr, docs: dc, sheets: sh}, nil
}

// MimeType returns the Drive mime type of a file.
func (d *Documents) MimeType(ctx context.Context, fileID string) (string, error) {
	f, err := d.drive.Files.Get(fileID).Fields("mimeType").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get file metadata: %w", err)
	}
	return f.MimeType, nil
}

// DocText returns the concatenated paragraph text of a Google Doc.
func (d *Documents) DocText(ctx context.Context, documentID string) (string, error) {
	doc, err := d.docs.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get document: %w", err)
	}
	return documentText(doc), nil
}

// SpreadsheetText returns the text rendering of every sheet.
func (d *Documents) SpreadsheetText(ctx context.Context, spreadsheetID string) (string, error) {
	return d.sheets.SpreadsheetText(ctx, spreadsheetID)
}

// Tables and other structural elements are not extracted.
func documentText(doc *docs.Document) string {
	if doc == nil || doc.Body == nil {
		return ""
	}
	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String()
}
