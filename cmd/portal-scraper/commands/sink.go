package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// consoleSink prints engine progress to the terminal.
type consoleSink struct {
	out io.Writer
}

func (s consoleSink) AppendLine(_ context.Context, text string, _ *models.Checkpoint) error {
	_, err := fmt.Fprintln(s.out, text)
	return err
}

func (s consoleSink) RecordError(_ context.Context, text string) error {
	_, err := fmt.Fprintln(s.out, "  ! "+text)
	return err
}
