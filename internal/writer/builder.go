// internal/writer/builder.go
package writer

import (
	"fmt"
	"time"

	cfg "github.com/tamzrod/chassis-manager/internal/config"
	"github.com/tamzrod/chassis-manager/internal/writer/ingest"
	wmodbus "github.com/tamzrod/chassis-manager/internal/writer/modbus"
)

// BuildPlan converts one blade config into a Writer Plan.
// Assumes config has already passed validation.
func BuildPlan(b cfg.BladeConfig, sm *cfg.StatusMemoryConfig) (Plan, error) {
	plan := Plan{Slot: b.Slot}

	if b.StatusSlot == nil {
		return plan, nil
	}
	if sm == nil {
		return Plan{}, fmt.Errorf("writer: blade %d: status_slot without status_memory", b.Slot)
	}

	plan.Status = &StatusPlan{
		Endpoint:   sm.Endpoint,
		UnitID:     sm.UnitID,
		BaseSlot:   *b.StatusSlot,
		DeviceName: b.DeviceName,
	}
	return plan, nil
}

// BuildEndpointClients creates the status memory client. The map is keyed
// by endpoint and is empty when status memory is not configured.
func BuildEndpointClients(sm *cfg.StatusMemoryConfig) (map[string]EndpointClient, func() error, error) {
	clients := make(map[string]EndpointClient)
	if sm == nil {
		return clients, func() error { return nil }, nil
	}

	timeout := time.Duration(sm.TimeoutMs) * time.Millisecond

	var (
		c   EndpointClient
		err error
	)
	switch sm.Protocol {
	case "ingest":
		c, err = ingest.NewEndpointClient(ingest.Config{Endpoint: sm.Endpoint, Timeout: timeout})
	case "", "modbus":
		c, err = wmodbus.NewEndpointClient(wmodbus.Config{Endpoint: sm.Endpoint, Timeout: timeout})
	default:
		err = fmt.Errorf("writer: unknown protocol %q", sm.Protocol)
	}
	if err != nil {
		return nil, nil, err
	}

	clients[sm.Endpoint] = c
	return clients, c.Close, nil
}
