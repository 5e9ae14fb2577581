package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

type service struct {
	client paho_mqtt.Client
	prefix string

	mu                sync.Mutex
	configuredDevices map[string]struct{}
}

func New(client paho_mqtt.Client, topicPrefix string) *service {
	return &service{
		client:            client,
		prefix:            topicPrefix,
		configuredDevices: make(map[string]struct{}),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return nil
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}
