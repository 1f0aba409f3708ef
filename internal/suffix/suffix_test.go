package suffix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRoundTripsThroughExtract(t *testing.T) {
	tests := []struct {
		name string
		s    Suffix
	}{
		{"error with message", Suffix{Kind: Error, Message: "Hook Command Failed"}},
		{"bare running agent", Suffix{Kind: RunningAgent, Message: ""}},
		{"running agent with message", Suffix{Kind: RunningAgent, Message: "fix_hook-pid-250801_120000"}},
		{"killed process", Suffix{Kind: KilledProcess, Message: "424242"}},
		{"acknowledged", Suffix{Kind: Acknowledged, Message: "ZOMBIE"}},
		{"plain free-form", Suffix{Kind: Plain, Message: "READY TO MAIL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := "  bb_build" + tt.s.Render()
			base, got, ok := Extract(line)
			require.True(t, ok)
			assert.Equal(t, "  bb_build", base)
			assert.Equal(t, tt.s.Kind, got.Kind)
			assert.Equal(t, tt.s.Message, got.Message)
		})
	}
}

func TestExtractNoSuffixReturnsFalse(t *testing.T) {
	base, s, ok := Extract("  bb_build")
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Equal(t, "  bb_build", base)
}

func TestInferKindErrorSet(t *testing.T) {
	assert.Equal(t, Error, InferKind("ZOMBIE"))
	assert.Equal(t, Error, InferKind("Hook Command Failed"))
	assert.Equal(t, Error, InferKind("Unresolved Critique Comments"))
}

func TestInferKindAgentTimestamp(t *testing.T) {
	assert.Equal(t, RunningAgent, InferKind("fix_hook-250801_120000"))
}

func TestInferKindBareLegacyTimestamps(t *testing.T) {
	// A hand-edited or legacy file may carry a running-agent timestamp
	// with no agent-name prefix at all, in either the 13-char
	// underscored form or the oldest bare 12-digit form.
	assert.Equal(t, RunningAgent, InferKind("250801_120000"))
	assert.Equal(t, RunningAgent, InferKind("250801120000"))
}

func TestInferKindPid(t *testing.T) {
	assert.Equal(t, RunningProcess, InferKind("424242"))
}

func TestInferKindFallsBackToPlain(t *testing.T) {
	assert.Equal(t, Plain, InferKind("READY TO MAIL"))
}

func TestParseTimestampAcceptsModernAndLegacyForms(t *testing.T) {
	modern := "250801_120000"
	legacy := "250801120000"

	mt, ok := ParseTimestamp(modern)
	require.True(t, ok)
	lt, ok := ParseTimestamp(legacy)
	require.True(t, ok)
	assert.True(t, mt.Equal(lt))
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, ok := ParseTimestamp("not-a-timestamp")
	assert.False(t, ok)
}

func TestFormatTimestampIsCanonicalForm(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, Location)
	assert.Equal(t, "260801_120000", FormatTimestamp(ts))
}

func TestIsZombie(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, Location)
	now := start.Add(3 * time.Hour)
	assert.True(t, IsZombie(start, now, DefaultZombieTimeout))
	assert.False(t, IsZombie(start, start.Add(time.Hour), DefaultZombieTimeout))
}
