package health

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 3 * time.Second
)

// ConnectivityProber периодически опрашивает HTTP endpoint сервера и ведет
// флаг online/offline. Кэши консультируются с флагом перед каждой загрузкой,
// поэтому переходы фиксируются и в логе, и в health check.
type ConnectivityProber struct {
	url      string
	client   *http.Client
	interval time.Duration
	logger   *log.Entry

	online    atomic.Bool
	lastProbe atomic.Int64 // unix nano последней попытки
}

// ProberOption настраивает ConnectivityProber.
type ProberOption func(*ConnectivityProber)

// WithProbeInterval задает период опроса.
func WithProbeInterval(interval time.Duration) ProberOption {
	return func(p *ConnectivityProber) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithProbeClient задает HTTP клиент для опроса.
func WithProbeClient(client *http.Client) ProberOption {
	return func(p *ConnectivityProber) {
		if client != nil {
			p.client = client
		}
	}
}

// WithProberLogger задает logger.
func WithProberLogger(logger *log.Entry) ProberOption {
	return func(p *ConnectivityProber) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewConnectivityProber создает prober. До первого опроса состояние
// считается online, чтобы не блокировать холодный старт.
func NewConnectivityProber(url string, options ...ProberOption) *ConnectivityProber {
	p := &ConnectivityProber{
		url:      url,
		client:   &http.Client{Timeout: defaultProbeTimeout},
		interval: defaultProbeInterval,
		logger:   log.WithField("component", "connectivity-prober"),
	}
	for _, option := range options {
		option(p)
	}
	p.online.Store(true)
	return p
}

// Online сообщает текущее состояние сети.
func (p *ConnectivityProber) Online() bool {
	return p.online.Load()
}

// SetOnline принудительно выставляет состояние. Используется когда сигнал
// приходит извне, например от результата обычного запроса.
func (p *ConnectivityProber) SetOnline(online bool) {
	was := p.online.Swap(online)
	if was != online {
		p.logger.WithField("online", online).Info("connectivity state changed")
	}
}

// Run опрашивает endpoint до отмены ctx.
func (p *ConnectivityProber) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *ConnectivityProber) probe(ctx context.Context) {
	p.lastProbe.Store(time.Now().UnixNano())

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.WithError(err).Warn("build probe request")
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.SetOnline(false)
		return
	}
	defer resp.Body.Close()

	// Любой ответ сервера означает, что сеть есть. 5xx - проблема сервера,
	// а не связности; offline-ветка кэша для нее не предназначена.
	p.SetOnline(true)
}

// Check реализует health.Checker поверх текущего состояния сети.
func (p *ConnectivityProber) Check() Check {
	if p.Online() {
		return Check{
			Name:   "connectivity",
			Status: StatusHealthy,
		}
	}
	return Check{
		Name:    "connectivity",
		Status:  StatusDegraded,
		Message: fmt.Sprintf("server %s is unreachable, caches serve stale data", p.url),
	}
}

var _ Checker = (*ConnectivityProber)(nil)
