package config

import (
	"time"
)

// Бэкенды хранилищ и очереди.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendRabbitMQ = "rabbitmq"
)

// Config — конфигурация scheduler'а и worker'а.
type Config struct {
	// InstanceID — идентификатор экземпляра (default: hostname-pid).
	InstanceID string `mapstructure:"instance_id"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Lease    LeaseConfig    `mapstructure:"lease"`
	Tick     TickConfig     `mapstructure:"tick"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Registry RegistryConfig `mapstructure:"registry"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`

	Jobs []JobConfig `mapstructure:"jobs"`

	Worker WorkerConfig `mapstructure:"worker"`

	// Watch — перезагружать job при изменении файла конфигурации.
	Watch bool `mapstructure:"watch"`

	// path — файл, из которого загружен конфиг (пусто — только окружение).
	path string
}

// Path возвращает путь к файлу конфигурации.
func (c *Config) Path() string {
	return c.path
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LeaseConfig — параметры leader election.
type LeaseConfig struct {
	Backend      string        `mapstructure:"backend"`
	Key          string        `mapstructure:"key"`
	TTL          time.Duration `mapstructure:"ttl"`
	RenewPeriod  time.Duration `mapstructure:"renew_period"`
	RenewTimeout time.Duration `mapstructure:"renew_timeout"`
	ElectionPoll time.Duration `mapstructure:"election_poll"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

type TickConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// QueueConfig — очередь work items.
type QueueConfig struct {
	Backend        string        `mapstructure:"backend"`
	DefaultTopic   string        `mapstructure:"default_topic"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// RegistryConfig — хранилище состояния расписаний.
type RegistryConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// JobConfig — описание job в файле конфигурации.
type JobConfig struct {
	Name     string         `mapstructure:"name"`
	Cadence  string         `mapstructure:"cadence"`
	Timezone string         `mapstructure:"timezone"`
	Topic    string         `mapstructure:"topic"`
	Payload  map[string]any `mapstructure:"payload"`

	// Enabled — nil означает true.
	Enabled *bool `mapstructure:"enabled"`
}

// UsesBackend проверяет, нужен ли бэкенд хотя бы одному компоненту.
func (c *Config) UsesBackend(backend string) bool {
	return c.Lease.Backend == backend ||
		c.Queue.Backend == backend ||
		c.Registry.Backend == backend
}

// WorkerConfig — конфигурация эталонного worker'а.
type WorkerConfig struct {
	// HTTPAddr — адрес /healthz и /metrics worker'а.
	HTTPAddr string `mapstructure:"http_addr"`

	// Topics — топики для потребления (default: все топики job).
	Topics []string `mapstructure:"topics"`

	Prefetch int `mapstructure:"prefetch"`

	// CompletionTopic — топик отчётов job.done. Пусто — отчёты не публикуются.
	CompletionTopic string `mapstructure:"completion_topic"`

	// Webhooks — job, которые worker отправляет на HTTP endpoint.
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

// WebhookConfig — webhook для одной job.
type WebhookConfig struct {
	Job     string            `mapstructure:"job"`
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}
