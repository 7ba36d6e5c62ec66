package cadence

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// ErrInvalidCadence — cadence не парсится или не имеет будущих срабатываний.
var ErrInvalidCadence = errors.New("invalid cadence")

// maxSkipCount ограничивает подсчёт пропущенных срабатываний cron.
const maxSkipCount = 1000

// cronParser — парсер cron-выражений: 5 полей и дескрипторы (@hourly, @daily).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cadence вычисляет время следующего запуска.
type Cadence interface {
	// Next возвращает время строго после ref.
	// Нулевое время — будущих срабатываний нет.
	Next(ref time.Time) time.Time

	// String возвращает исходное выражение.
	String() string
}

// Interval — фиксированный интервал.
type Interval struct {
	Every time.Duration
	expr  string
}

// Next возвращает ref + Every.
func (i Interval) Next(ref time.Time) time.Time {
	return ref.Add(i.Every).UTC()
}

func (i Interval) String() string {
	if i.expr != "" {
		return i.expr
	}
	return i.Every.String()
}

// Cron — расписание по cron-выражению в заданном часовом поясе.
type Cron struct {
	expr     string
	loc      *time.Location
	schedule cron.Schedule
}

// Next вычисляет следующее время по cron-выражению.
func (c Cron) Next(ref time.Time) time.Time {
	next := c.schedule.Next(ref.In(c.loc))
	if next.IsZero() {
		return next
	}
	return next.UTC() // в UTC для хранения
}

func (c Cron) String() string {
	return c.expr
}

// Parse разбирает выражение cadence.
//
// Поддерживаемые формы:
//   - "10s", "1m30s"      — фиксированный интервал (time.ParseDuration)
//   - "@every 10s"        — фиксированный интервал
//   - "*/5 * * * *"       — cron, вычисляется в timezone tz
//   - "@hourly", "@daily" — дескрипторы cron
func Parse(expr, tz string) (Cadence, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.Mark(errors.New("empty cadence"), ErrInvalidCadence)
	}

	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		return parseInterval(expr, strings.TrimSpace(rest))
	}
	if _, err := time.ParseDuration(expr); err == nil {
		return parseInterval(expr, expr)
	}

	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "load timezone %q", tz), ErrInvalidCadence)
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse cron expression %q", expr), ErrInvalidCadence)
	}

	return Cron{expr: expr, loc: loc, schedule: schedule}, nil
}

func parseInterval(expr, dur string) (Cadence, error) {
	d, err := time.ParseDuration(dur)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse interval %q", expr), ErrInvalidCadence)
	}
	if d <= 0 {
		return nil, errors.Mark(errors.Newf("interval must be positive, got %s", d), ErrInvalidCadence)
	}
	return Interval{Every: d, expr: expr}, nil
}

// Initial вычисляет первое время запуска для новой job.
func Initial(c Cadence, now time.Time) (time.Time, error) {
	next := c.Next(now)
	if next.IsZero() {
		return time.Time{}, errors.Mark(errors.Newf("cadence %q has no future occurrence", c), ErrInvalidCadence)
	}
	return next, nil
}

// Coalesce вычисляет следующий next_due_at после диспатча.
//
// Пропущенные срабатывания схлопываются: результат всегда строго после now,
// сколько бы интервалов ни было пропущено. skipped — число пропущенных
// срабатываний (без учёта диспатчнутого).
//
// Для интервалов отсчёт идёт от prevDue, а не от now — иначе расписание
// уплывает на время обработки тика. Нулевой prevDue отсчёта не даёт:
// следующий запуск считается от now.
func Coalesce(c Cadence, prevDue, now time.Time) (next time.Time, skipped int, err error) {
	if prevDue.IsZero() {
		next, err = Initial(c, now)
		return next, 0, err
	}

	switch v := c.(type) {
	case Interval:
		if prevDue.After(now) {
			return prevDue.Add(v.Every).UTC(), 0, nil
		}
		missed := int64(now.Sub(prevDue) / v.Every)
		next = prevDue.Add(time.Duration(missed+1) * v.Every).UTC()
		if !next.After(now) {
			// now.Sub переполнился
			next, err = Initial(c, now)
			return next, 0, err
		}
		return next, int(missed), nil

	default:
		t := prevDue
		for skipped < maxSkipCount {
			t = c.Next(t)
			if t.IsZero() || t.After(now) {
				break
			}
			skipped++
		}

		next = c.Next(now)
		if next.IsZero() {
			return time.Time{}, skipped, errors.Mark(
				errors.Newf("cadence %q has no occurrence after %s", c, now.UTC().Format(time.RFC3339)),
				ErrInvalidCadence,
			)
		}
		return next, skipped, nil
	}
}
