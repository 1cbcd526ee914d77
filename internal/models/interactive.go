package models

// ButtonType is the kind of an interactive button.
type ButtonType string

const (
	ButtonQuickReply ButtonType = "quick_reply"
	ButtonURL        ButtonType = "url"
)

// Button is one interactive button.
type Button struct {
	Type  ButtonType `json:"type"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
	URL   string     `json:"url,omitempty"`
}

// ButtonMessage is an interactive message with up to three buttons.
type ButtonMessage struct {
	Header  string   `json:"header,omitempty"`
	Body    string   `json:"body"`
	Footer  string   `json:"footer,omitempty"`
	Buttons []Button `json:"buttons"`
}

// ListRow is one selectable row of a list message.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups list rows under an optional title.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// ListMessage is an interactive list message.
type ListMessage struct {
	Header   string        `json:"header,omitempty"`
	Body     string        `json:"body"`
	Footer   string        `json:"footer,omitempty"`
	Label    string        `json:"label"`
	Sections []ListSection `json:"sections"`
}

// Validate checks the constraints every gateway shares.
func (m ButtonMessage) Validate() error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	if len(m.Buttons) == 0 {
		return ErrNoButtons
	}
	if len(m.Buttons) > MaxButtons {
		return ErrTooManyButtons
	}
	for _, b := range m.Buttons {
		if b.Title == "" || b.ID == "" {
			return ErrEmptyButton
		}
		if b.Type == ButtonURL && b.URL == "" {
			return ErrButtonURLNeeded
		}
	}
	return nil
}

// Validate checks that the list has a body and at least one row.
func (m ListMessage) Validate() error {
	if m.Body == "" {
		return ErrEmptyBody
	}
	for _, s := range m.Sections {
		if len(s.Rows) > 0 {
			return nil
		}
	}
	return ErrNoListRows
}

// Rows flattens all sections in display order.
func (m ListMessage) Rows() []ListRow {
	var rows []ListRow
	for _, s := range m.Sections {
		rows = append(rows, s.Rows...)
	}
	return rows
}
