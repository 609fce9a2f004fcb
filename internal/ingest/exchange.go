// Package ingest is the ingestion orchestration engine: it discovers the
// tasks of a task-group, fans out status fetches under a fixed connection
// budget, classifies each task's run history into normalized job payloads,
// and loads the results with per-item failure isolation.
package ingest

import (
	"fmt"

	"github.com/corral-ci/corral/internal/model"
)

// ExchangeMapper translates between run states and the exchange names used
// to route job events. The forward map (exchange → state) is owned by the
// normalization collaborator; the mapper derives and exposes the strict
// inverse. Read-only after construction, safe for concurrent use.
type ExchangeMapper struct {
	stateToExchange map[model.RunState]string
}

// NewExchangeMapper builds the inverse mapping. Two exchanges carrying the
// same state make the inverse ambiguous; that is a configuration error and
// the constructor fails rather than picking a winner.
func NewExchangeMapper(exchangeToState map[string]model.RunState) (*ExchangeMapper, error) {
	inverse := make(map[model.RunState]string, len(exchangeToState))
	for exchange, state := range exchangeToState {
		if prev, ok := inverse[state]; ok {
			return nil, fmt.Errorf("ingest: state %q mapped by both %q and %q", state, prev, exchange)
		}
		inverse[state] = exchange
	}
	return &ExchangeMapper{stateToExchange: inverse}, nil
}

// ExchangeFor returns the exchange that carries events for the given state.
func (m *ExchangeMapper) ExchangeFor(state model.RunState) (string, error) {
	exchange, ok := m.stateToExchange[state]
	if !ok {
		return "", fmt.Errorf("ingest: no exchange for run state %q", state)
	}
	return exchange, nil
}
