package analytics

import "sync"

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

type EventType string

const STEP_ENTERED EventType = "step_entered"
const ACTION_SUCCESS EventType = "action_success"
const ACTION_FAILURE EventType = "action_failure"
const FLOW_COMPLETED EventType = "flow_completed"
const FLOW_HALTED EventType = "flow_halted"

type Event struct {
	Type        EventType
	ContactId   string
	FlowName    string
	FlowVersion int
	InstanceId  string
	StepId      string
	Action      string
	Reason      string
}

type FlowDataCollector interface {
	Record(event Event)
}

type noopCollector struct{}

func (noopCollector) Record(Event) {}

var (
	mu        sync.RWMutex
	collector FlowDataCollector = noopCollector{}
)

func InitDataCollector(config DataCollectorConfig) error {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		c, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		SetCollector(c)
	default:
		SetCollector(noopCollector{})
	}
	return nil
}

func SetCollector(c FlowDataCollector) {
	mu.Lock()
	defer mu.Unlock()
	collector = c
}

func Record(events ...Event) {
	mu.RLock()
	c := collector
	mu.RUnlock()
	for _, e := range events {
		c.Record(e)
	}
}
