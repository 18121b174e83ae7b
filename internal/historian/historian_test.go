// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilHistorianIsInert(t *testing.T) {
	var h *Historian
	h.Record(context.Background(), CommandRecord{Command: "sys_set_public"})
	assert.NoError(t, h.Close())
}

func TestNewFromEnvWithoutRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	assert.Nil(t, NewFromEnv(logger))
}

func TestNewDefaultsQueue(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := New(nil, "", logger)
	assert.Equal(t, DefaultQueue, h.queue)
}

func TestCommandRecordEncoding(t *testing.T) {
	rec := CommandRecord{
		GameID:     "g",
		InstanceID: "lobby",
		Player:     "alice@example.com",
		Command:    "sys_set_public",
		Timestamp:  1700000000000,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"game_id": "g",
		"instance_id": "lobby",
		"player": "alice@example.com",
		"command": "sys_set_public",
		"timestamp": 1700000000000
	}`, string(data))

	var decoded CommandRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec, decoded)
}
