// Package googleapi wraps the Google Sheets, Docs, Drive and Calendar APIs
// behind the narrow methods the rest of WAPi needs, authenticated with a
// service account.
package googleapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// OAuth scopes requested by the connectors.
const (
	ScopeSheets        = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDocsReadOnly  = "https://www.googleapis.com/auth/documents.readonly"
	ScopeDriveMetadata = "https://www.googleapis.com/auth/drive.metadata.readonly"
	ScopeCalendar      = "https://www.googleapis.com/auth/calendar"
)

// AllScopes is every scope used by WAPi.
var AllScopes = []string{ScopeSheets, ScopeDocsReadOnly, ScopeDriveMetadata, ScopeCalendar}

// Google Drive mime types the ingester understands.
const (
	MimeGoogleDoc   = "application/vnd.google-apps.document"
	MimeGoogleSheet = "application/vnd.google-apps.spreadsheet"
)

// ErrNoCredentials is returned when neither inline JSON nor a file path is
// configured.
var ErrNoCredentials = errors.New("google service account credentials not configured")

// LoadCredentials builds service account credentials from inline JSON,
// falling back to the JSON file at path.
func LoadCredentials(ctx context.Context, inlineJSON, path string, scopes ...string) (*google.Credentials, error) {
	data := []byte(strings.TrimSpace(inlineJSON))
	if len(data) == 0 {
		if path == "" {
			return nil, ErrNoCredentials
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		data = b
	}
	if len(scopes) == 0 {
		scopes = AllScopes
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

// ClientOptions returns the API client options authenticating with creds.
func ClientOptions(ctx context.Context, creds *google.Credentials) []option.ClientOption {
	return []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource))}
}
