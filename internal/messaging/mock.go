package messaging

import (
	"context"
	"sync"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// Sent is one message recorded by MockService.
type Sent struct {
	Kind    string // "text", "image", "buttons", "list"
	To      string
	Body    string
	Caption string
	URL     string
	Buttons models.ButtonMessage
	List    models.ListMessage
}

// MockService records sends in memory. TextErr and ImageErr make the
// matching sends fail; FailTextAfter > 0 fails every text send after that
// many successful ones.
type MockService struct {
	mu            sync.Mutex
	Sent          []Sent
	TextErr       error
	ImageErr      error
	FailTextAfter int
	inbound       chan models.InboundMessage
	texts         int
}

var _ Service = (*MockService)(nil)

func NewMockService() *MockService {
	return &MockService{inbound: make(chan models.InboundMessage, DefaultChannelBufferSize)}
}

func (m *MockService) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TextErr != nil {
		return m.TextErr
	}
	if m.FailTextAfter > 0 && m.texts >= m.FailTextAfter {
		return ErrServiceStopped
	}
	m.texts++
	m.Sent = append(m.Sent, Sent{Kind: "text", To: to, Body: body})
	return nil
}

func (m *MockService) SendImage(_ context.Context, to, caption, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ImageErr != nil {
		return m.ImageErr
	}
	m.Sent = append(m.Sent, Sent{Kind: "image", To: to, Caption: caption, URL: url})
	return nil
}

func (m *MockService) SendButtons(_ context.Context, to string, msg models.ButtonMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Sent{Kind: "buttons", To: to, Body: msg.Body, Buttons: msg})
	return nil
}

func (m *MockService) SendList(_ context.Context, to string, msg models.ListMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Sent{Kind: "list", To: to, Body: msg.Body, List: msg})
	return nil
}

func (m *MockService) Start(context.Context) error { return nil }

func (m *MockService) Stop() error { return nil }

func (m *MockService) Receive() <-chan models.InboundMessage { return m.inbound }

// Messages returns a copy of everything sent so far.
func (m *MockService) Messages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.Sent...)
}

// Texts returns the bodies of the text messages sent so far.
func (m *MockService) Texts() []string {
	var out []string
	for _, s := range m.Messages() {
		if s.Kind == "text" {
			out = append(out, s.Body)
		}
	}
	return out
}

// Reset forgets recorded sends.
func (m *MockService) Reset() {
	m.mu.Lock()
	m.Sent = nil
	m.texts = 0
	m.mu.Unlock()
}
