package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/config"
	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

const onboardingYaml = `
name: onboarding
version: 1
entryStep: WELCOME
steps:
  - id: WELCOME
    kind: send
    template: Welcome!
  - id: ASK_NAME
    kind: question
    template: What is your name?
    expects:
      type: non_empty_string
      variable: name
  - id: DONE
    kind: send
    template: "Bye {{ name }}"
    terminal: true
transitions:
  - from: WELCOME
    to: ASK_NAME
    priority: 1
    condition:
      type: always
  - from: ASK_NAME
    to: DONE
    priority: 1
    condition:
      type: flag
      flag: name_received
`

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onboarding.yaml"), []byte(onboardingYaml), 0o644))
	return config.Config{
		HttpPort:     0,
		StorageType:  config.STORAGE_TYPE_INMEM,
		QueueType:    config.QUEUE_TYPE_INMEM,
		DispatchMode: config.DISPATCH_MODE_SYNC,
		ClusterConfig: config.ClusterConfig{
			NodeName:       "node-1",
			PartitionCount: 4,
		},
		ExecutorConfig: config.ExecutorConfig{
			Lanes:        2,
			Capacity:     16,
			BatchSize:    8,
			PollInterval: 10 * time.Millisecond,
		},
		EngineConfig: config.EngineConfig{
			DefaultFlow:       "onboarding",
			RetryCount:        1,
			RetryAfterSeconds: 1,
			RetryPolicy:       model.RETRY_POLICY_FIXED,
		},
		FlowConfig:      config.FlowConfig{Dir: dir},
		AnalyticsConfig: analytics.DataCollectorConfig{CollectorType: analytics.NOOP_DATA_COLLECTOR},
	}
}

func event(id string, contact string, text string) *model.InboundEvent {
	return &model.InboundEvent{
		ExternalId: id,
		ContactId:  contact,
		Kind:       model.EVENT_EXTERNAL_REPLY,
		Payload:    map[string]any{model.PAYLOAD_TEXT: text},
	}
}

func TestAgent(t *testing.T) {
	ctx := context.Background()
	a, err := New(testConfig(t))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, a.ring.GetPartitions())
	names := make([]string, 0, len(a.executors))
	for _, ex := range a.executors {
		names = append(names, ex.Name())
	}
	require.Contains(t, names, "sweep-executor")

	out, err := a.engine.Submit(ctx, event("wamid-1", "c1", "hi"))
	require.NoError(t, err)
	require.Equal(t, "ASK_NAME", out.ActiveStep)
	require.True(t, out.Suspended)

	out, err = a.engine.Submit(ctx, event("wamid-2", "c1", "Jane"))
	require.NoError(t, err)
	require.True(t, out.Completed)

	_, err = a.engine.GetContext(ctx, "c1")
	require.ErrorIs(t, err, model.ErrNoActiveFlow)

	require.NoError(t, a.Start())
	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestAgentConfig(t *testing.T) {
	for scenario, mutate := range map[string]func(c *config.Config){
		"unknown storage": func(c *config.Config) {
			c.StorageType = "cassandra"
		},
		"missing flow dir": func(c *config.Config) {
			c.FlowConfig.Dir = filepath.Join(c.FlowConfig.Dir, "missing")
		},
		"bad reload schedule is caught on start": nil,
	} {
		t.Run(scenario, func(t *testing.T) {
			c := testConfig(t)
			if mutate == nil {
				c.FlowConfig.ReloadSchedule = "every tuesday"
				a, err := New(c)
				require.NoError(t, err)
				require.Error(t, a.Start())
				return
			}
			mutate(&c)
			_, err := New(c)
			require.Error(t, err)
		})
	}
}
