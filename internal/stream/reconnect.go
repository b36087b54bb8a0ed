package stream

import "time"

// DefaultMaxDelay потолок задержки, если MaxDelay не задан
const DefaultMaxDelay = 30 * time.Second

// ReconnectPolicy ограниченное экспоненциальное переподключение.
// Выключено по умолчанию: после ошибки клиент остается отключенным,
// пока его не перезапустят снаружи.
type ReconnectPolicy struct {
	Enabled      bool
	MaxAttempts  int // 0 = без ограничения
	InitialDelay time.Duration
	MaxDelay     time.Duration // 0 = DefaultMaxDelay
	Multiplier   float64
}

// Delay задержка перед попыткой attempt (с 1)
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	if delay >= limit {
		return limit
	}

	// рост сравнивается во float64 до приведения, Duration не переполняется
	for i := 1; i < attempt; i++ {
		next := float64(delay) * mult
		if next >= float64(limit) {
			return limit
		}
		delay = time.Duration(next)
	}
	return delay
}

// allows сообщает, разрешена ли попытка attempt
func (p ReconnectPolicy) allows(attempt int) bool {
	if !p.Enabled {
		return false
	}
	return p.MaxAttempts <= 0 || attempt <= p.MaxAttempts
}
