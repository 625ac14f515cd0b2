// package formatter renders session status, profiles and event history as text, JSON, CSV or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/podsession/internal/models"
	"github.com/desertthunder/podsession/internal/session"
)

// Format names an output encoding.
type Format string

const (
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts txt, json, csv or md (and a few long spellings).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use txt, json, csv or md)", s)
	}
}

// StatusToText renders a snapshot as aligned key/value lines.
func StatusToText(snap session.Snapshot) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "State:         %s\n", snap.State)
	fmt.Fprintf(&buf, "Authenticated: %t\n", snap.Authenticated)
	if snap.User != nil {
		fmt.Fprintf(&buf, "User:          %s <%s>\n", snap.User.DisplayName(), snap.User.Email)
	}
	if len(snap.Roles) > 0 {
		fmt.Fprintf(&buf, "Roles:         %s\n", strings.Join(snap.Roles, ", "))
	}
	if snap.ExpiresAt != nil {
		fmt.Fprintf(&buf, "Expires:       %s (%s)\n", snap.ExpiresAt.Format(time.RFC3339), remaining(snap.Remaining))
	}

	return buf.Bytes()
}

// ProfileToText renders a user profile as plain text.
func ProfileToText(p *models.UserProfile) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Name:    %s\n", p.DisplayName())
	fmt.Fprintf(&buf, "Email:   %s\n", p.Email)
	if p.PhoneNumber != "" {
		fmt.Fprintf(&buf, "Phone:   %s\n", p.PhoneNumber)
	}
	if p.Address != "" {
		fmt.Fprintf(&buf, "Address: %s\n", p.Address)
	}
	if len(p.Roles) > 0 {
		fmt.Fprintf(&buf, "Roles:   %s\n", strings.Join(p.Roles, ", "))
	}

	return buf.Bytes()
}

// ProfileToMarkdown renders a user profile as a Markdown section.
func ProfileToMarkdown(p *models.UserProfile) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.DisplayName())
	fmt.Fprintf(&buf, "**Email**: %s\n", p.Email)
	if p.PhoneNumber != "" {
		fmt.Fprintf(&buf, "**Phone**: %s\n", p.PhoneNumber)
	}
	if p.Address != "" {
		fmt.Fprintf(&buf, "**Address**: %s\n", p.Address)
	}
	if len(p.Roles) > 0 {
		buf.WriteString("\n## Roles\n\n")
		for _, role := range p.Roles {
			fmt.Fprintf(&buf, "- %s\n", role)
		}
	}

	return buf.Bytes()
}

// EventsToCSV converts session events to CSV with columns: Sequence, Kind, From, To, Reason, Email, CreatedAt
func EventsToCSV(events []*models.SessionEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "Kind", "From", "To", "Reason", "Email", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range events {
		record := []string{
			strconv.Itoa(e.Sequence),
			e.Kind,
			e.From,
			e.To,
			e.Reason,
			e.Email,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// EventsToMarkdown renders session events as a numbered Markdown list.
func EventsToMarkdown(events []*models.SessionEvent) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Session History\n\n")
	fmt.Fprintf(&buf, "**Events**: %d\n\n", len(events))
	for i, e := range events {
		fmt.Fprintf(&buf, "%d. `%s` %s [%s]\n", i+1, e.Kind, describe(e), e.CreatedAt.UTC().Format(time.RFC3339))
	}

	return buf.Bytes()
}

// EventsToText renders session events one per line.
func EventsToText(events []*models.SessionEvent) []byte {
	var buf bytes.Buffer

	for _, e := range events {
		fmt.Fprintf(&buf, "%s  %-16s %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Kind, describe(e))
	}

	return buf.Bytes()
}

func describe(e *models.SessionEvent) string {
	var parts []string
	if e.From != "" || e.To != "" {
		parts = append(parts, fmt.Sprintf("%s → %s", e.From, e.To))
	}
	if e.Reason != "" {
		parts = append(parts, "reason="+e.Reason)
	}
	if e.Email != "" {
		parts = append(parts, e.Email)
	}
	return strings.Join(parts, " ")
}

func remaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	return d.Round(time.Second).String() + " left"
}

// ToJSON encodes v as indented JSON with a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteStatus writes a snapshot in the given format. CSV is not supported for status.
func WriteStatus(w io.Writer, format Format, snap session.Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = ToJSON(snap)
	case FormatText, FormatMarkdown:
		data = StatusToText(snap)
	default:
		return fmt.Errorf("status cannot be rendered as %s", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteProfile writes a profile in the given format.
func WriteProfile(w io.Writer, format Format, p *models.UserProfile) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = ToJSON(p)
	case FormatMarkdown:
		data = ProfileToMarkdown(p)
	case FormatText:
		data = ProfileToText(p)
	default:
		return fmt.Errorf("profile cannot be rendered as %s", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// RenderEvents encodes events in the given format.
func RenderEvents(format Format, events []*models.SessionEvent) ([]byte, error) {
	switch format {
	case FormatJSON:
		if events == nil {
			events = []*models.SessionEvent{}
		}
		return ToJSON(events)
	case FormatCSV:
		return EventsToCSV(events)
	case FormatMarkdown:
		return EventsToMarkdown(events), nil
	case FormatText:
		return EventsToText(events), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// WriteEvents writes events in the given format.
func WriteEvents(w io.Writer, format Format, events []*models.SessionEvent) error {
	data, err := RenderEvents(format, events)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteEventsExport writes events to a file.
//
// Defaults to session_history.{format} as the filename.
func WriteEventsExport(events []*models.SessionEvent, format Format, filepath string) (string, error) {
	if filepath == "" {
		filepath = "session_history." + string(format)
	}

	data, err := RenderEvents(format, events)
	if err != nil {
		return "", fmt.Errorf("failed to render history: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write history file: %w", err)
	}

	return filepath, nil
}
