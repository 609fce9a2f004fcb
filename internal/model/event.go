package model

// StatusSnapshot is the status context embedded in a job event: the task's
// identity plus its complete run history at the moment of classification.
type StatusSnapshot struct {
	TaskID string `json:"taskId"`
	Runs   []Run  `json:"runs"`
}

// JobEventPayload carries the snapshot plus the run the event is about.
type JobEventPayload struct {
	Status StatusSnapshot `json:"status"`
	RunID  int            `json:"runId"`
}

// JobEvent is the exchange-routed event for one run of one task. The
// exchange names the event category (one per run state); the payload carries
// the entire run list, not just the selected run, so the normalizer can tell
// a superseded attempt from a terminal outcome.
type JobEvent struct {
	Exchange string          `json:"exchange"`
	Payload  JobEventPayload `json:"payload"`
	RootURL  string          `json:"root_url"`
}

// PushBody wraps the commit list of a push event.
type PushBody struct {
	Commits []Commit `json:"commits"`
}

// PushEventPayload is the normalized payload for a push or pull-request
// event, shaped like the upstream GitHub exchange messages.
type PushEventPayload struct {
	Organization string            `json:"organization"`
	Repository   string            `json:"repository"`
	Action       string            `json:"action,omitempty"`
	Details      map[string]string `json:"details"`
	Body         PushBody          `json:"body"`
}

// PushEvent is the exchange-routed event for a source-control push or
// pull-request, handed to the push loader.
type PushEvent struct {
	Exchange   string           `json:"exchange"`
	RoutingKey string           `json:"routingKey"`
	Payload    PushEventPayload `json:"payload"`
}

// Exchange names for push-shaped events.
const (
	ExchangeGithubPush        = "exchange/taskcluster-github/v1/push"
	ExchangeGithubPullRequest = "exchange/taskcluster-github/v1/pull-request"
)
