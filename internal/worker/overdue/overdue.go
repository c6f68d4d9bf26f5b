// Package overdue は返却期限を過ぎた貸出へのリマインダー送信ジョブを提供する。
// 一定間隔で期限切れの貸出を検出し、借り手への通知をキューに積んだうえで
// 最終通知日時を記録する。
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/foliora/internal/model"
	"github.com/hitoshi/foliora/internal/notify"
)

const (
	// DefaultScanInterval はスキャン間隔のデフォルト値。
	DefaultScanInterval = time.Hour
	// DefaultReminderInterval は同じ貸出へ再通知するまでの最短間隔のデフォルト値。
	DefaultReminderInterval = 24 * time.Hour
)

// LoanRepository は期限切れ貸出の取得と通知日時の記録を抽象化するインターフェース。
// repository.BorrowRequestRepository が満たす。
type LoanRepository interface {
	ListOverdue(ctx context.Context, now, remindedBefore time.Time) ([]model.OverdueLoan, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

// Enqueuer は通知を非同期送信キューに積むインターフェース。
// notify.Dispatcher が満たす。
type Enqueuer interface {
	Enqueue(msg notify.Message) bool
}

// ScanRecorder はスキャン結果をメトリクスに記録するインターフェース。
type ScanRecorder interface {
	RecordOverdueScan(found int, duration time.Duration)
}

// Job は返却期限切れリマインダーの定期ジョブ。
type Job struct {
	loans    LoanRepository
	queue    Enqueuer
	recorder ScanRecorder
	logger   *slog.Logger

	// ReminderInterval は同じ貸出へ再通知するまでの最短間隔。
	ReminderInterval time.Duration

	now func() time.Time
}

// NewJob は新しいJobを生成する。recorderはnilでもよい。
func NewJob(loans LoanRepository, queue Enqueuer, recorder ScanRecorder, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		loans:            loans,
		queue:            queue,
		recorder:         recorder,
		logger:           logger,
		ReminderInterval: DefaultReminderInterval,
		now:              time.Now,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("返却期限切れスキャンを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("reminder_interval", j.ReminderInterval),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("返却期限切れスキャンを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("返却期限切れスキャンの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は期限切れの貸出を1回スキャンし、キューに積んだ通知の件数を返す。
// 通知の組み立てやキュー投入に失敗した貸出はログに残してスキップし、サイクル全体は失敗させない。
// 最終通知日時は投入に成功した貸出にのみ記録するため、同じサイクル内での重複送信は起こらない。
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	now := j.now()

	loans, err := j.loans.ListOverdue(ctx, now, now.Add(-j.ReminderInterval))
	if err != nil {
		return 0, fmt.Errorf("返却期限切れ貸出の取得に失敗: %w", err)
	}

	sent := 0
	for _, loan := range loans {
		if ctx.Err() != nil {
			break
		}
		deadline := loan.ExpectedReturn
		msg, err := notify.ReturnReminder(loan.BorrowerEmail, loan.BookTitle, &deadline)
		if err != nil {
			j.logger.Warn("リマインダーの作成に失敗しました",
				slog.String("request_id", loan.RequestID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !j.queue.Enqueue(msg) {
			continue
		}
		if err := j.loans.MarkReminded(ctx, loan.RequestID, now); err != nil {
			j.logger.Warn("リマインダー送信日時の記録に失敗しました",
				slog.String("request_id", loan.RequestID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
	}

	duration := time.Since(start)
	if j.recorder != nil {
		j.recorder.RecordOverdueScan(len(loans), duration)
	}
	j.logger.Info("返却期限切れスキャンが完了しました",
		slog.Int("overdue_count", len(loans)),
		slog.Int("enqueued_count", sent),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return sent, nil
}
