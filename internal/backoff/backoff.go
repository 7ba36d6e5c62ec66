// Package backoff вычисляет задержки между повторными попытками.
//
// Используется:
//   - scheduler — паузы между попытками захвата lease (ACQUIRING)
//   - mq        — паузы между попытками переподключения к RabbitMQ
//   - worker    — паузы после ошибок BRPOP и повторяемых сбоев обработчика
//
// Все стратегии stateless и безопасны для конкурентного использования.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy вычисляет задержку перед попыткой attempt (начиная с 1).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential удваивает задержку с каждой попыткой.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential создаёт экспоненциальную стратегию.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay возвращает Initial * 2^(attempt-1), но не больше Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(e.Initial, e.Max, attempt)
}

// ExponentialWithJitter — экспонента с full jitter.
// Delay — случайное значение в [0, min(Initial * 2^(attempt-1), Max)].
//
// N standby-экземпляров не долбят хранилище lease одновременно.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter создаёт экспоненциальную стратегию с full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay возвращает случайную задержку в [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	return time.Duration(rand.Float64() * float64(capped(e.Initial, e.Max, attempt))) //nolint:gosec // jitter, не криптография
}

// Jitter размазывает d в диапазоне [d*(1-fraction), d*(1+fraction)].
func Jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	delta := (rand.Float64()*2 - 1) * fraction * float64(d) //nolint:gosec // jitter, не криптография
	return time.Duration(float64(d) + delta)
}

func capped(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
