package strategy

import (
	"encoding/json"
	"fmt"
	"time"

	"strategy-enginev1/internal/indicator"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

// stateVersion is bumped whenever the persisted layout changes shape.
const stateVersion = 1

// persistedState is the versioned blob written to the state store on stop
// and read back on start. It captures everything a restarted instance
// needs to resume producing the same decisions on a continuing stream:
// indicator internals, ID counters, derived positions, and the last ticks
// per symbol (so the has-ticks gate holds immediately after restore).
type persistedState struct {
	Version    int                  `json:"version"`
	StrategyID string               `json:"strategy_id"`
	SavedAt    time.Time            `json:"saved_at"`
	OrderSeq   int                  `json:"order_seq"`
	PosSeq     int                  `json:"pos_seq"`
	Indicators []indicator.Snapshot `json:"indicators"`
	Positions  []order.Position     `json:"positions"`
	LastTicks  []model.Tick         `json:"last_ticks"`
	Custom     map[string]string    `json:"custom,omitempty"`
}

func encodeState(st persistedState) ([]byte, error) {
	blob, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode strategy state: %w", err)
	}
	return blob, nil
}

func decodeState(blob []byte) (persistedState, error) {
	var st persistedState
	if err := json.Unmarshal(blob, &st); err != nil {
		return st, fmt.Errorf("decode strategy state: %w", err)
	}
	if st.Version != stateVersion {
		return st, fmt.Errorf("strategy state version %d unsupported (want %d)", st.Version, stateVersion)
	}
	return st, nil
}
