/*
PURPOSE:
  Persists benchmarking sessions and their messages so a conversation can be
  listed, reviewed, exported and resumed after the process exits.

REQUIREMENTS:
  User-specified:
  - One row per session, one row per message, message order preserved.
  - Export a session as plain text, one "role: content" line per message.

  Implementation-discovered:
  - Writes of one session are serialized; independent sessions write in parallel.
  - A turn's messages land in one transaction (all or nothing).

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine (Loop), internal/cli (sessions commands)
  - Dependencies: mattn/go-sqlite3, google/uuid

ERROR HANDLING:
  - Unknown session ids return ErrSessionNotFound.
  - Everything else is wrapped with the failing operation.
  - Callers in the loop log store failures and keep going.

RELATED FILES:
  - internal/store/sqlite.go
  - internal/output/session.go (export renderers)
*/

package store

import (
	"context"
	"errors"

	"github.com/daryltucker/agent-bench/internal/model"
)

// ErrSessionNotFound is returned for ids the store does not know.
var ErrSessionNotFound = errors.New("session not found")

// Store is the session persistence contract.
type Store interface {
	CreateSession(ctx context.Context, cfg model.ProviderConfig) (string, error)
	AppendTurn(ctx context.Context, sessionID string, msgs ...model.Message) error
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)
	LoadSession(ctx context.Context, sessionID string) (model.Session, error)
	ExportSession(ctx context.Context, sessionID string) (string, error)
	Close() error
}
