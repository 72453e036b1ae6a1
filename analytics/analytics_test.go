package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogFileDataCollector(t *testing.T) {
	file := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, InitDataCollector(DataCollectorConfig{FileName: file, CollectorType: LOG_FILE_DATA_COLLECTOR}))
	defer SetCollector(noopCollector{})

	Record(
		Event{Type: STEP_ENTERED, ContactId: "c1", FlowName: "onboarding", FlowVersion: 1, StepId: "WELCOME"},
		Event{Type: ACTION_FAILURE, ContactId: "c1", FlowName: "onboarding", FlowVersion: 1, StepId: "CHARGE", Action: "payments", Reason: "declined"},
	)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.Equal(t, "action_failure", entry["msg"])
	require.Equal(t, "payments", entry["action"])
	require.Equal(t, "declined", entry["reason"])
}
