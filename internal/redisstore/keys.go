package redisstore

// Все ключи с префиксом "metronome:", кроме ключа lease:
// он задаётся конфигом (default "metronome:lock").
const keyPrefix = "metronome:"

// stateKey — hash состояния job: metronome:state:{name}
func stateKey(name string) string { return keyPrefix + "state:" + name }

// jobsKey — set имён job с сохранённым состоянием.
const jobsKey = keyPrefix + "jobs"

// queueKey — list work items топика: metronome:queue:{topic}
func queueKey(topic string) string { return keyPrefix + "queue:" + topic }
