package syncer

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Controller выдаёт задержки перед повторными проходами синхронизации.
// Задержка растёт экспоненциально от удвоенной базы и ограничена
// потолком; успешный проход сбрасывает последовательность.
type Controller struct {
	base time.Duration
	cap  time.Duration

	mu      sync.Mutex
	backoff retry.Backoff
}

// NewController создаёт контроллер задержек.
func NewController(base, cap time.Duration) *Controller {
	c := &Controller{base: base, cap: cap}
	c.reset()
	return c
}

func (c *Controller) reset() {
	c.backoff = retry.WithCappedDuration(c.cap, retry.NewExponential(2*c.base))
}

// Next возвращает задержку перед следующим повтором.
func (c *Controller) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, _ := c.backoff.Next()
	return d
}

// Reset возвращает контроллер к начальной задержке.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()
}
