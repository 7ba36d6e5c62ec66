package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/domain"
)

var (
	leaseBackends    = []string{BackendMemory, BackendRedis, BackendPostgres}
	queueBackends    = []string{BackendMemory, BackendRabbitMQ, BackendRedis}
	registryBackends = []string{BackendMemory, BackendRedis, BackendPostgres}
)

// Validate проверяет конфигурацию процесса.
//
// Ошибки job сюда не входят: битая job только исключается из
// реестра (см. JobDefinitions и registry.Register).
func (c *Config) Validate() error {
	if err := checkBackend("lease.backend", c.Lease.Backend, leaseBackends); err != nil {
		return err
	}
	if err := checkBackend("queue.backend", c.Queue.Backend, queueBackends); err != nil {
		return err
	}
	if err := checkBackend("registry.backend", c.Registry.Backend, registryBackends); err != nil {
		return err
	}

	if strings.TrimSpace(c.Lease.Key) == "" {
		return invalid("lease.key is empty", "set lease.key or METRONOME_LEASE_KEY")
	}
	if c.Lease.TTL <= 0 {
		return invalid("lease.ttl must be positive", "e.g. lease.ttl: 15s")
	}
	if c.Lease.RenewPeriod < 0 || c.Lease.RenewPeriod >= c.Lease.TTL {
		return invalid("lease.renew_period must be less than lease.ttl", "leave it 0 to use ttl/3")
	}
	if c.Lease.RenewTimeout < 0 || c.Lease.RenewTimeout > c.Lease.TTL/3 {
		return invalid("lease.renew_timeout must not exceed lease.ttl/3", "leave it 0 to use ttl/3")
	}
	if c.Lease.ElectionPoll <= 0 {
		return invalid("lease.election_poll must be positive", "e.g. lease.election_poll: 5s")
	}
	if c.Tick.Period <= 0 {
		return invalid("tick.period must be positive", "e.g. tick.period: 1s")
	}
	if c.Queue.PublishTimeout <= 0 {
		return invalid("queue.publish_timeout must be positive", "e.g. queue.publish_timeout: 5s")
	}
	if strings.TrimSpace(c.Queue.DefaultTopic) == "" {
		return invalid("queue.default_topic is empty", "e.g. queue.default_topic: jobs.due")
	}

	if c.UsesBackend(BackendRedis) && c.Redis.URL == "" {
		return invalid("redis.url is required for the redis backend", "set METRONOME_REDIS_URL")
	}
	if c.UsesBackend(BackendPostgres) && c.Postgres.URL == "" {
		return invalid("postgres.url is required for the postgres backend", "set METRONOME_POSTGRES_URL")
	}
	if c.UsesBackend(BackendRabbitMQ) && c.RabbitMQ.URL == "" {
		return invalid("rabbitmq.url is required for the rabbitmq backend", "set METRONOME_RABBITMQ_URL")
	}

	for i, wh := range c.Worker.Webhooks {
		if wh.Job == "" || wh.URL == "" {
			return invalid(fmt.Sprintf("worker.webhooks[%d]: job and url are required", i), "each webhook needs job and url")
		}
	}
	if t := c.Worker.CompletionTopic; t != "" && slices.Contains(c.WorkerTopics(), t) {
		return invalid(
			fmt.Sprintf("worker.completion_topic %q is consumed by the worker", t),
			"use a topic no job publishes to, e.g. jobs.done",
		)
	}

	return nil
}

func checkBackend(key, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return errors.WithHint(
		errors.Mark(errors.Newf("%s: unknown backend %q", key, value), ErrInvalidConfig),
		"supported: "+strings.Join(allowed, ", "),
	)
}

func invalid(msg, hint string) error {
	return errors.WithHint(errors.Mark(errors.New(msg), ErrInvalidConfig), hint)
}

// JobDefinitions переводит jobs из конфига в определения реестра.
//
// Job с непереводимым payload пропускается, ошибки по всем
// таким job объединяются. Cadence здесь не проверяется.
func (c *Config) JobDefinitions() ([]domain.JobDefinition, error) {
	defs := make([]domain.JobDefinition, 0, len(c.Jobs))
	var errs error

	for _, j := range c.Jobs {
		def := domain.JobDefinition{
			Name:     strings.TrimSpace(j.Name),
			Cadence:  j.Cadence,
			Timezone: j.Timezone,
			Topic:    j.Topic,
			Enabled:  j.Enabled == nil || *j.Enabled,
		}

		if len(j.Payload) > 0 {
			payload, err := json.Marshal(j.Payload)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "job %q: encode payload", def.Name))
				continue
			}
			def.Payload = payload
		}

		defs = append(defs, def)
	}

	return defs, errs
}

// Topics возвращает топики всех job и топик по умолчанию.
func (c *Config) Topics() []string {
	topics := []string{c.Queue.DefaultTopic}
	for _, j := range c.Jobs {
		if j.Topic != "" {
			topics = append(topics, j.Topic)
		}
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// WorkerTopics возвращает топики worker'а: явный список или все топики job.
func (c *Config) WorkerTopics() []string {
	if len(c.Worker.Topics) > 0 {
		return c.Worker.Topics
	}
	return c.Topics()
}
