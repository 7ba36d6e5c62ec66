package queue

import "github.com/cockroachdb/errors"

// ErrPublishFailed — брокер не подтвердил публикацию (ошибка, таймаут,
// отмена). Относится к одной job: её next_due_at не сдвигается,
// повтор на следующем тике.
var ErrPublishFailed = errors.New("publish failed")
