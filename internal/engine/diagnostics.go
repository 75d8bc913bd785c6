package engine

import (
	"log"
	"sync"

	"github.com/scrypster/kinship/pkg/types"
)

// maxDiagnostics bounds the retained diagnostics; the oldest are dropped first.
const maxDiagnostics = 1000

// diagnosticLog records each distinct diagnostic once and logs it when first seen.
type diagnosticLog struct {
	mu      sync.Mutex
	limit   int
	entries []types.Diagnostic
	seen    map[types.Diagnostic]struct{}
}

func newDiagnosticLog(limit int) *diagnosticLog {
	return &diagnosticLog{
		limit: limit,
		seen:  make(map[types.Diagnostic]struct{}),
	}
}

func (l *diagnosticLog) record(d types.Diagnostic) {
	l.mu.Lock()
	if _, dup := l.seen[d]; dup {
		l.mu.Unlock()
		return
	}
	l.seen[d] = struct{}{}
	l.entries = append(l.entries, d)
	if len(l.entries) > l.limit {
		delete(l.seen, l.entries[0])
		l.entries = l.entries[1:]
	}
	l.mu.Unlock()

	log.Printf("engine: data warning: %s", d)
}

func (l *diagnosticLog) list() []types.Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Diagnostic, len(l.entries))
	copy(out, l.entries)
	return out
}
