// Package metrics counts access gate decisions and exports them as
// Prometheus text or OpenTelemetry observable counters.
package metrics

import "sync/atomic"

// Counter identifies one gate counter.
type Counter uint8

const (
	UnlockAttempts Counter = iota
	NewDevice
	Verified
	DeviceMismatch
	InvalidToken
	EmptyToken
	StoreErrors
	BindRaceLost
	BindingResets
	SessionsIssued
	SessionsRejected
	counterCount
)

// Def names a counter for exporters.
type Def struct {
	ID   Counter
	Name string
	Help string
}

// Defs lists every counter in export order.
var Defs = []Def{
	{UnlockAttempts, "synapse_gate_unlock_attempts_total", "Unlock requests received."},
	{NewDevice, "synapse_gate_new_device_total", "Tokens bound to a device on first use."},
	{Verified, "synapse_gate_verified_total", "Unlocks from the bound device."},
	{DeviceMismatch, "synapse_gate_device_mismatch_total", "Unlocks rejected because the token is bound to another device."},
	{InvalidToken, "synapse_gate_invalid_token_total", "Unlocks with an unknown token."},
	{EmptyToken, "synapse_gate_empty_token_total", "Unlocks without a token."},
	{StoreErrors, "synapse_gate_store_errors_total", "Unlocks denied because the token store was unreachable."},
	{BindRaceLost, "synapse_gate_bind_race_lost_total", "First-use bindings that lost a concurrent compare-and-set."},
	{BindingResets, "synapse_gate_binding_resets_total", "Administrative binding resets."},
	{SessionsIssued, "synapse_sessions_issued_total", "Session credentials issued."},
	{SessionsRejected, "synapse_sessions_rejected_total", "Session credentials rejected."},
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[Counter]uint64
}

type Metrics struct {
	counters [counterCount]atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

// Inc is a no-op on a nil receiver.
func (m *Metrics) Inc(c Counter) {
	if m == nil || c >= counterCount {
		return
	}
	m.counters[c].Add(1)
}

func (m *Metrics) Value(c Counter) uint64 {
	if m == nil || c >= counterCount {
		return 0
	}
	return m.counters[c].Load()
}

func (m *Metrics) Snapshot() Snapshot {
	out := Snapshot{Counters: make(map[Counter]uint64, counterCount)}
	if m == nil {
		return out
	}
	for i := Counter(0); i < counterCount; i++ {
		out.Counters[i] = m.counters[i].Load()
	}
	return out
}

// Named returns the snapshot keyed by export name, for JSON responses.
func (s Snapshot) Named() map[string]uint64 {
	out := make(map[string]uint64, len(Defs))
	for _, def := range Defs {
		out[def.Name] = s.Counters[def.ID]
	}
	return out
}
