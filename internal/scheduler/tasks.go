package scheduler

import (
	"encoding/json"

	"callsync_agent/internal/crm"

	"github.com/hibiken/asynq"
)

// TaskCallPoll runs one auto-post poll cycle over the device call log.
const TaskCallPoll = "calls.poll"

// TaskCallPost submits one resolved call record to the backend.
const TaskCallPost = "calls.post"

// TaskLeadsRefresh re-fetches the assigned-lead directory.
const TaskLeadsRefresh = "leads.refresh"

// CallPostPayload carries one resolved call to the posting handler.
// Deduplicate is false for call-end synthetic ids, which live outside the
// device-call ledger namespace.
type CallPostPayload struct {
	CallID      string         `json:"callId"`
	Deduplicate bool           `json:"deduplicate"`
	Record      crm.CallRecord `json:"record"`
}

func NewCallPollTask() *asynq.Task {
	return asynq.NewTask(TaskCallPoll, nil)
}

func NewLeadsRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskLeadsRefresh, nil)
}

func NewCallPostTask(payload CallPostPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallPost, data), nil
}

func ParseCallPostPayload(task *asynq.Task) (CallPostPayload, error) {
	var payload CallPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallPostPayload{}, err
	}
	return payload, nil
}
