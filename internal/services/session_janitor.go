package services

import (
	"context"
	"sync"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/repository"
)

// JanitorStatus represents the outcome of the last cleanup run
type JanitorStatus struct {
	Running          bool      `json:"running"`
	LastRun          time.Time `json:"lastRun,omitempty"`
	LastRunDuration  string    `json:"lastRunDuration,omitempty"`
	SessionsRemoved  int       `json:"sessionsRemoved"`
	FoldersRemoved   int       `json:"foldersRemoved"`
	Errors           []string  `json:"errors,omitempty"`
	NextScheduledRun time.Time `json:"nextScheduledRun,omitempty"`
}

// SessionJanitor periodically removes expired web sessions together with
// their drafts and staged files
type SessionJanitor struct {
	sessionRepo repository.WebSessionRepo
	staging     *StagingService
	wizard      *UploadWizard
	interval    time.Duration

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	ticker   *time.Ticker
	status   JanitorStatus
	now      func() time.Time
}

// NewSessionJanitor creates a new SessionJanitor
func NewSessionJanitor(
	sessionRepo repository.WebSessionRepo,
	staging *StagingService,
	wizard *UploadWizard,
	interval time.Duration,
) *SessionJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionJanitor{
		sessionRepo: sessionRepo,
		staging:     staging,
		wizard:      wizard,
		interval:    interval,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins the background cleanup loop
func (j *SessionJanitor) Start() {
	j.mu.Lock()
	if j.ticker != nil {
		j.mu.Unlock()
		return // Already started
	}
	j.stopChan = make(chan struct{})
	j.ticker = time.NewTicker(j.interval)
	j.status.NextScheduledRun = j.now().Add(j.interval)
	ticker, stop := j.ticker, j.stopChan
	j.mu.Unlock()

	observability.Infof("Session janitor started (runs every %s)", j.interval)

	go j.RunOnce(context.Background())

	go func() {
		for {
			select {
			case <-ticker.C:
				j.mu.Lock()
				j.status.NextScheduledRun = j.now().Add(j.interval)
				j.mu.Unlock()
				j.RunOnce(context.Background())
			case <-stop:
				ticker.Stop()
				observability.Info("Session janitor stopped")
				return
			}
		}
	}()
}

// Stop stops the cleanup loop
func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker == nil {
		return // Already stopped
	}
	close(j.stopChan)
	j.ticker = nil
}

// GetStatus returns the outcome of the last run
func (j *SessionJanitor) GetStatus() JanitorStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// RunOnce removes expired sessions and staging folders nobody owns
func (j *SessionJanitor) RunOnce(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		observability.Debug("Session cleanup already running, skipping")
		return
	}
	j.running = true
	j.status.Running = true
	j.mu.Unlock()

	ctx, span := observability.StartServiceSpan(ctx, "SessionJanitor", "RunOnce")
	defer span.End()

	start := j.now()
	sessionsRemoved, errs := j.removeExpiredSessions(ctx)
	foldersRemoved, folderErrs := j.removeOrphanFolders(ctx)
	errs = append(errs, folderErrs...)
	duration := j.now().Sub(start)

	j.mu.Lock()
	j.running = false
	j.status.Running = false
	j.status.LastRun = start
	j.status.LastRunDuration = duration.Round(time.Millisecond).String()
	j.status.SessionsRemoved = sessionsRemoved
	j.status.FoldersRemoved = foldersRemoved
	j.status.Errors = errs
	j.mu.Unlock()

	if sessionsRemoved > 0 || foldersRemoved > 0 {
		observability.Infof("Session cleanup: removed %d sessions and %d staging folders", sessionsRemoved, foldersRemoved)
	}
	if len(errs) > 0 {
		observability.Warnf("Session cleanup: completed with %d errors", len(errs))
	}
}

func (j *SessionJanitor) removeExpiredSessions(ctx context.Context) (int, []string) {
	ids, err := j.sessionRepo.ListExpired(ctx, j.now())
	if err != nil {
		return 0, []string{"Failed to list expired sessions: " + err.Error()}
	}

	var errs []string
	removed := 0
	for _, id := range ids {
		if err := j.staging.DeleteSession(id); err != nil {
			errs = append(errs, "Failed to delete staged files of "+id+": "+err.Error())
		}
		if err := j.sessionRepo.Delete(ctx, id); err != nil {
			errs = append(errs, "Failed to delete session "+id+": "+err.Error())
			continue
		}
		if j.wizard != nil {
			j.wizard.Forget(id)
		}
		removed++
	}
	return removed, errs
}

// removeOrphanFolders deletes staging folders of sessions that no longer exist
func (j *SessionJanitor) removeOrphanFolders(ctx context.Context) (int, []string) {
	ids, err := j.staging.SessionIDs()
	if err != nil {
		return 0, []string{"Failed to list staging folders: " + err.Error()}
	}

	var errs []string
	removed := 0
	for _, id := range ids {
		session, err := j.sessionRepo.GetByID(ctx, id)
		if err != nil {
			errs = append(errs, "Failed to look up session "+id+": "+err.Error())
			continue
		}
		if session != nil {
			continue
		}
		if err := j.staging.DeleteSession(id); err != nil {
			errs = append(errs, "Failed to delete staging folder "+id+": "+err.Error())
			continue
		}
		removed++
	}
	return removed, errs
}
