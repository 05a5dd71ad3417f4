// Package telemetry publishes periodic sensor snapshots to an MQTT broker
// for ground-station display.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config controls the publisher. When Enable is false the service is a
// no-op.
type Config struct {
	Enable   bool
	Broker   string
	ClientID string
	Topic    string
	Interval time.Duration
}

// Service publishes the value returned by source as JSON on the configured
// topic every interval. Publish failures are logged and the loop keeps
// going; paho reconnects underneath.
type Service struct {
	cfg    Config
	source func() interface{}

	client mqtt.Client

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	lastErr string
}

func New(cfg Config, source func() interface{}) *Service {
	return &Service{cfg: cfg, source: source, stopCh: make(chan struct{})}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("telemetry service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if s.source == nil {
		return fmt.Errorf("telemetry: source is required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID)
	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect %s: %w", s.cfg.Broker, token.Error())
	}

	log.Printf("telemetry: publishing to %s topic=%s every %s", s.cfg.Broker, s.cfg.Topic, s.cfg.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.publishOnce()
		}
	}
}

func (s *Service) publishOnce() {
	payload, err := json.Marshal(s.source())
	if err != nil {
		s.noteErr(fmt.Sprintf("marshal failed: %v", err))
		return
	}
	token := s.client.Publish(s.cfg.Topic, 0, true, payload)
	token.Wait()
	if token.Error() != nil {
		s.noteErr(fmt.Sprintf("publish failed: %v", token.Error()))
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

func (s *Service) noteErr(msg string) {
	if msg == s.lastErr {
		return
	}
	s.lastErr = msg
	log.Printf("telemetry: %s", msg)
}
