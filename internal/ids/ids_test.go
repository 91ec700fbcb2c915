package ids_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kessa-dev/kessa/internal/ids"
)

func TestGHAP_Format(t *testing.T) {
	now := time.Date(2026, 1, 15, 14, 30, 22, 0, time.UTC)
	id := ids.GHAP(now)
	assert.True(t, strings.HasPrefix(id, "ghap_20260115_143022_"))
	assert.Len(t, strings.TrimPrefix(id, "ghap_20260115_143022_"), 6)
}

func TestSession_Format(t *testing.T) {
	now := time.Date(2026, 1, 15, 14, 30, 22, 0, time.UTC)
	id := ids.Session(now)
	assert.True(t, strings.HasPrefix(id, "session_20260115_143022_"))
}

func TestValue_Format(t *testing.T) {
	id := ids.Value("strategy", 3)
	assert.True(t, strings.HasPrefix(id, "value_strategy_3_"))
	assert.Len(t, strings.TrimPrefix(id, "value_strategy_3_"), 8)
}

func TestMemory_Format(t *testing.T) {
	id := ids.Memory()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestClusterID_Format(t *testing.T) {
	assert.Equal(t, "full_2", ids.ClusterID("full", 2))
}

func TestGHAP_Unique(t *testing.T) {
	now := time.Now()
	a := ids.GHAP(now)
	b := ids.GHAP(now)
	assert.NotEqual(t, a, b)
}
