package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Recorder は通知結果の記録インターフェース。
type Recorder interface {
	RecordNotification(channel, outcome string)
}

// 通知結果のラベル
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

const channelEmail = "email"

// DispatcherConfig は非同期送信の設定。
type DispatcherConfig struct {
	PerMinute   int           // 1分あたりの最大送信数
	QueueSize   int           // 送信待ちキューの長さ
	SendTimeout time.Duration // 1通あたりの送信タイムアウト
}

// DefaultDispatcherConfig はデフォルトの送信設定を返す。
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PerMinute:   30,
		QueueSize:   256,
		SendTimeout: 15 * time.Second,
	}
}

// Dispatcher はキューに積まれた通知をレート制限しながら順に送信する。
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
	queue    chan Message
	timeout  time.Duration
	recorder Recorder

	wg sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。送信を開始するにはStartを呼ぶ。
func NewDispatcher(notifier Notifier, cfg DispatcherConfig, recorder Recorder) *Dispatcher {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultDispatcherConfig().PerMinute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultDispatcherConfig().SendTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
		queue:    make(chan Message, cfg.QueueSize),
		timeout:  cfg.SendTimeout,
		recorder: recorder,
	}
}

// Enqueue は通知をキューに積む。呼び出し元をブロックしない。
// キューが満杯の場合は破棄してfalseを返す。
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		slog.Warn("notification queue is full, dropping message",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
		d.record(OutcomeDropped)
		return false
	}
}

// Start は送信ゴルーチンを開始する。ctxがキャンセルされると停止する。
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Wait は送信ゴルーチンの終了を待つ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				slog.Warn("dispatcher stopped with pending notifications", slog.Int("pending", n))
			}
			return
		case msg := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.send(ctx, msg)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.notifier.Notify(sendCtx, msg); err != nil {
		slog.Error("failed to send notification",
			slog.String("to", msg.To),
			slog.String("error", err.Error()),
		)
		d.record(OutcomeFailed)
		return
	}
	d.record(OutcomeSent)
}

func (d *Dispatcher) record(outcome string) {
	if d.recorder != nil {
		d.recorder.RecordNotification(channelEmail, outcome)
	}
}
