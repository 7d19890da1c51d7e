package scouter

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies the player that a lookup is made for.
type ID int64

// Result is either a NoData or an Estimate. The interface is sealed so
// that a type switch over the two variants is exhaustive.
type Result interface {
	ID() ID
	isResult()
}

// NoData is returned when the player exists but the remote service has no
// usable estimate for them.
type NoData struct {
	PlayerID ID
}

func (n NoData) ID() ID  { return n.PlayerID }
func (NoData) isResult() {}

// Estimate holds a complete set of stats for a player.
type Estimate struct {
	PlayerID      ID
	Score         float64
	Estimate      int64
	EstimateHuman string
	LastUpdated   time.Time
}

func (e Estimate) ID() ID  { return e.PlayerID }
func (Estimate) isResult() {}

// CachedResult is a Result together with the instant it stops being valid.
type CachedResult struct {
	Result Result
	Expiry time.Time
}

// Expired reports whether the entry is no longer valid at now.
func (c CachedResult) Expired(now time.Time) bool {
	return !c.Expiry.After(now)
}

// record is the serialized form of a CachedResult. It's shared by every
// store that persists bytes.
type record struct {
	PlayerID      ID      `json:"player_id"`
	NoData        bool    `json:"no_data"`
	FairFight     float64 `json:"fair_fight,omitempty"`
	BSEstimate    int64   `json:"bs_estimate,omitempty"`
	BSEstimateHum string  `json:"bs_estimate_human,omitempty"`
	LastUpdated   int64   `json:"last_updated,omitempty"`
	Expiry        int64   `json:"expiry"`
}

// MarshalCachedResult encodes a CachedResult for storage.
func MarshalCachedResult(c CachedResult) ([]byte, error) {
	r := record{Expiry: c.Expiry.UnixMilli()}
	switch v := c.Result.(type) {
	case NoData:
		r.PlayerID = v.PlayerID
		r.NoData = true
	case Estimate:
		r.PlayerID = v.PlayerID
		r.FairFight = v.Score
		r.BSEstimate = v.Estimate
		r.BSEstimateHum = v.EstimateHuman
		r.LastUpdated = v.LastUpdated.Unix()
	default:
		return nil, fmt.Errorf("scouter: unknown result type %T", c.Result)
	}
	return json.Marshal(r)
}

// UnmarshalCachedResult decodes bytes written by MarshalCachedResult.
func UnmarshalCachedResult(data []byte) (CachedResult, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return CachedResult{}, err
	}

	cached := CachedResult{Expiry: time.UnixMilli(r.Expiry)}
	if r.NoData {
		cached.Result = NoData{PlayerID: r.PlayerID}
		return cached, nil
	}

	cached.Result = Estimate{
		PlayerID:      r.PlayerID,
		Score:         r.FairFight,
		Estimate:      r.BSEstimate,
		EstimateHuman: r.BSEstimateHum,
		LastUpdated:   time.Unix(r.LastUpdated, 0),
	}
	return cached, nil
}
