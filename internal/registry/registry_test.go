package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

const validScript = "def generate_decisions(context):\n    return {}\n"

func TestRegisterScript_BindsAndResolves(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "my firm script", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	resolved, ok := r.ResolveBindings(simID, worldstate.AgentFirm, "firm")
	require.True(t, ok)
	assert.Equal(t, script.ScriptID, resolved.ScriptID)
}

func TestRegisterScript_RejectsMissingEntryPoint(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	_, err := r.RegisterScript(&simID, "alice", "x = 1\n", "", worldstate.AgentFirm, "firm")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidScript, apperr.KindOf(err))
}

func TestRegisterScript_RejectsDisallowedImport(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	code := "import os\ndef generate_decisions(context):\n    return {}\n"
	_, err := r.RegisterScript(&simID, "alice", code, "", worldstate.AgentFirm, "firm")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidScript, apperr.KindOf(err))
}

func TestRegisterScript_ConflictingBindingRejected(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	_, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	_, err = r.RegisterScript(&simID, "bob", validScript, "", worldstate.AgentFirm, "firm")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflictingBinding, apperr.KindOf(err))
}

func TestRegisterScript_QuotaEnforced(t *testing.T) {
	r := New(nil, 1)
	simID := "sim-1"
	_, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentHousehold, "h1")
	require.NoError(t, err)

	_, err = r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentHousehold, "h2")
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
}

func TestDetachThenAttach_RebindsScript(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	_, err = r.DetachScript(script.ScriptID, "alice")
	require.NoError(t, err)
	_, ok := r.ResolveBindings(simID, worldstate.AgentFirm, "firm")
	assert.False(t, ok)

	_, err = r.AttachScript(script.ScriptID, simID, "alice", "firm")
	require.NoError(t, err)
	_, ok = r.ResolveBindings(simID, worldstate.AgentFirm, "firm")
	assert.True(t, ok)
}

func TestAttachScript_ConcurrentAttachesToSameSlotOnlyOneWins(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"

	const n = 8
	scripts := make([]*Script, n)
	for i := range scripts {
		s, err := r.RegisterScript(nil, "alice", validScript, "", worldstate.AgentHousehold, "h1")
		require.NoError(t, err)
		scripts[i] = s
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	var start sync.WaitGroup
	start.Add(1)
	for i, s := range scripts {
		wg.Add(1)
		go func(i int, scriptID string) {
			defer wg.Done()
			start.Wait()
			_, err := r.AttachScript(scriptID, simID, "alice", "h1")
			results[i] = err
		}(i, s.ScriptID)
	}
	start.Done()
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperr.KindOf(err) == apperr.KindConflictingBinding:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one attach should win the slot")
	assert.Equal(t, n-1, conflicted)

	resolved, ok := r.ResolveBindings(simID, worldstate.AgentHousehold, "h1")
	require.True(t, ok)
	require.NotNil(t, resolved.SimulationID)
	assert.Equal(t, simID, *resolved.SimulationID)
}

func TestUpdateScriptCode_RejectedOffDayBoundary(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	const ticksPerDay = 10
	_, err = r.UpdateScriptCode(script.ScriptID, "alice", validScript, 3, ticksPerDay)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotAtDayBoundary, apperr.KindOf(err))
}

func TestUpdateScriptCode_AllowedAtDayBoundary(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	const ticksPerDay = 10
	updated, err := r.UpdateScriptCode(script.ScriptID, "alice", validScript, 20, ticksPerDay)
	require.NoError(t, err)
	assert.NotEqual(t, script.CodeVersion, updated.CodeVersion)
}

func TestUpdateScriptCode_GateDisabledWhenTicksPerDayIsZero(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	_, err = r.UpdateScriptCode(script.ScriptID, "alice", validScript, 7, 0)
	require.NoError(t, err)
}

func TestRecordFailure_StampsScript(t *testing.T) {
	r := New(nil, 10)
	simID := "sim-1"
	script, err := r.RegisterScript(&simID, "alice", validScript, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	r.RecordFailure(script.ScriptID, "boom")
	scripts := r.ListUserScripts("alice")
	require.Len(t, scripts, 1)
	assert.Equal(t, "boom", scripts[0].LastFailureReason)
}
