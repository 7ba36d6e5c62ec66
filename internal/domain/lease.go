package domain

import (
	"strings"
	"time"
)

// Lease — ограниченное по времени эксклюзивное право быть лидером.
//
// На один Key в любой момент существует не более одного живого lease.
type Lease struct {
	// Key — идентификатор кластера scheduler'ов.
	Key string `json:"key"`

	// OwnerToken — уникален для экземпляра и конкретного захвата.
	// Формат: "<instance_id>:<uuid>".
	OwnerToken string `json:"owner_token"`

	// ExpiresAt — момент истечения lease (по часам хранилища).
	ExpiresAt time.Time `json:"expires_at"`
}

// Holder возвращает instance id владельца из токена.
func (l *Lease) Holder() string {
	return HolderFromToken(l.OwnerToken)
}

// IsLive проверяет, не истёк ли lease к моменту now.
func (l *Lease) IsLive(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// OwnerToken собирает токен владельца.
func OwnerToken(instanceID, nonce string) string {
	return instanceID + ":" + nonce
}

// HolderFromToken извлекает instance id. uuid не содержит ':',
// поэтому режем по последнему разделителю.
func HolderFromToken(token string) string {
	i := strings.LastIndex(token, ":")
	if i < 0 {
		return token
	}
	return token[:i]
}
