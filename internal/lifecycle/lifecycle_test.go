package lifecycle

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/backoffice/internal/domain"
)

func TestActivityScopeAndKey(t *testing.T) {
	assert.Equal(t, "activity:advance_status:42", activityScope(42))
	assert.Equal(t, "to:position", activityKey(domain.StatusPosition))
	assert.Equal(t, "to:settled", activityKey(domain.StatusSettled))
}

func TestEntryRoleFromSourceSystem(t *testing.T) {
	assert.Equal(t, domain.EntryNormal, entryRoleFromSourceSystem(nil))

	modRev := domain.SourceModifyReversal
	assert.Equal(t, domain.EntryReversal, entryRoleFromSourceSystem(&modRev))

	delRev := domain.SourceDeleteReversal
	assert.Equal(t, domain.EntryReversal, entryRoleFromSourceSystem(&delRev))

	repl := domain.SourceModifyReplacement
	assert.Equal(t, domain.EntryReplacement, entryRoleFromSourceSystem(&repl))
}

func TestExecutorBackoffDoublesUpToCap(t *testing.T) {
	e := NewExecutor(nil, nil, nil, zerolog.Nop())

	delay := e.initialDelay
	for i := 0; i < 20; i++ {
		delay *= 2
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
	}
	assert.Equal(t, e.maxDelay, delay)
	assert.Equal(t, 10, e.maxAttempts)
}
