package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/agent-bench/internal/model"
)

// Format is a session export format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatCSV, FormatMarkdown}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Extension returns the file extension used for exported files.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// RenderSession writes a stored session in the given format.
func RenderSession(w io.Writer, s model.Session, format Format) error {
	switch format {
	case FormatText:
		for _, m := range s.Conversation {
			if _, err := fmt.Fprintf(w, "%s: %s\n", m.Role, m.Content); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, s)
	case FormatMarkdown:
		return renderMarkdown(w, s)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func renderCSV(w io.Writer, s model.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session_id", "ordinal", "role", "created_at", "content"}); err != nil {
		return err
	}
	for _, m := range s.Conversation {
		if err := cw.Write([]string{
			s.ID,
			strconv.Itoa(m.Ordinal),
			string(m.Role),
			m.CreatedAt.Format(time.RFC3339),
			m.Content,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, s model.Session) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", s.ID)
	fmt.Fprintf(&b, "- Provider: %s\n- Model: %s\n- Created: %s\n\n",
		s.Provider.ID, s.Provider.Model, s.CreatedAt.Format(time.RFC3339))
	for _, m := range s.Conversation {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", roleTitle(m.Role), m.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func roleTitle(r model.Role) string {
	switch r {
	case model.RoleSystem:
		return "System"
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}
