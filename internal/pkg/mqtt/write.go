package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
	"github.com/anicoll/gizwits-integration/internal/pkg/publisher"
)

type registerMessage struct {
	Tilda      string         `json:"~"`
	Name       string         `json:"name"`
	ID         string         `json:"unique_id"`
	StateTopic string         `json:"state_topic"`
	Device     registerDevice `json:"device"`
}

type registerDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

func (s *service) Write(ctx context.Context, changes []publisher.Change) error {
	for _, change := range changes {
		if err := s.publishChange(change); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) publishChange(change publisher.Change) error {
	topic := fmt.Sprintf("%s/%s/%s/state", s.prefix, change.DeviceID, change.Slug)

	payload, err := json.Marshal(map[string]any{
		"value":     change.Value,
		"online":    change.Online,
		"timestamp": change.Timestamp.Unix(),
	})
	if err != nil {
		return err
	}

	token := s.client.Publish(topic, 0, false, payload)
	if res := token.WaitTimeout(time.Second * 10); res {
		return nil
	}
	return token.Error()
}

func (s *service) RegisterDevice(device *model.Device) error {
	s.mu.Lock()
	_, exists := s.configuredDevices[device.ID]
	s.mu.Unlock()
	if exists {
		return nil
	}

	topic := fmt.Sprintf("%s/%s/config", s.prefix, device.ID)
	payload, err := json.Marshal(defaultRegisterMsg(s.prefix, device))
	if err != nil {
		return err
	}
	token := s.client.Publish(topic, 1, true, payload)
	if err := token.Error(); err != nil {
		return err
	}
	if res := token.WaitTimeout(time.Second * 5); res {
		s.mu.Lock()
		s.configuredDevices[device.ID] = struct{}{}
		s.mu.Unlock()
	}
	return nil
}

func defaultRegisterMsg(prefix string, device *model.Device) registerMessage {
	name := device.Alias
	if name == "" {
		name = fmt.Sprintf("%s %s", device.ProductName, device.MAC)
	}

	return registerMessage{
		Tilda:      fmt.Sprintf("%s/%s", prefix, device.ID),
		Name:       name,
		ID:         device.ID,
		StateTopic: "~/state",
		Device: registerDevice{
			Name:         name,
			Identifiers:  []string{device.ID, device.MAC},
			Model:        device.ProductName,
			Manufacturer: "Gizwits",
		},
	}
}
