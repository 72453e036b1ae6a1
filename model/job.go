package model

type ResumeJob struct {
	EntryId   string `json:"entryId"`
	ContactId string `json:"contactId"`
	TryCount  int    `json:"tryCount"`
}

type TimeoutJob struct {
	ContactId  string `json:"contactId"`
	InstanceId string `json:"instanceId"`
	StepId     string `json:"stepId"`
	StepSeq    int64  `json:"stepSeq"`
}

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "FIXED"
const RETRY_POLICY_BACKOFF RetryPolicy = "BACKOFF"
