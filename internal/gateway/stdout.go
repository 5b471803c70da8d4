package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stdout implements the Gateway interface by writing messages to standard
// output. Intended for development and debugging; messages are never
// actually delivered.
type Stdout struct {
	writer io.Writer
}

// NewStdout creates a Stdout gateway that prints messages to os.Stdout.
func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) Name() string { return "stdout" }

// Send prints the message details to stdout and returns a successful outcome.
func (s *Stdout) Send(_ context.Context, identifier, text string) (*Outcome, error) {
	var b strings.Builder
	b.WriteString("--- stdout gateway: message ---\n")
	fmt.Fprintf(&b, "To:   %s\n", identifier)
	fmt.Fprintf(&b, "Text: %s\n", text)
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &Outcome{
		ProviderMessageID: "stdout-" + uuid.New().String(),
		StatusCode:        http.StatusAccepted,
		ProviderMessage:   "accepted",
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always returns nil since stdout is always available.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
