package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// DraftStore persists upload wizard state per session
type DraftStore interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.UploadDraft, error)
	Save(ctx context.Context, draft *models.UploadDraft) error
	Delete(ctx context.Context, sessionID string) error
}

// PhotoUploader sends a finished photo to the API
type PhotoUploader interface {
	Upload(ctx context.Context, upload apiclient.UploadRequest) (*models.SummitPhoto, error)
}

// NearbyPeaks looks up peaks close to a point with the wizard's defaults
type NearbyPeaks interface {
	FindNearby(ctx context.Context, lat, lon float64) ([]models.PeakWithDistance, error)
}

// UploadWizard drives the four-step upload flow: select a file, review its
// metadata, pick a nearby peak and upload.
type UploadWizard struct {
	drafts   DraftStore
	staging  *StagingService
	metadata *MetadataService
	peaks    NearbyPeaks
	uploader PhotoUploader
	metrics  *observability.WizardMetrics

	locks sync.Map // session id -> *sync.Mutex
	now   func() time.Time
}

// NewUploadWizard creates a new UploadWizard
func NewUploadWizard(
	drafts DraftStore,
	staging *StagingService,
	metadata *MetadataService,
	peaks NearbyPeaks,
	uploader PhotoUploader,
	metrics *observability.WizardMetrics,
) *UploadWizard {
	return &UploadWizard{
		drafts:   drafts,
		staging:  staging,
		metadata: metadata,
		peaks:    peaks,
		uploader: uploader,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (w *UploadWizard) lock(sessionID string) func() {
	m, _ := w.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Current returns the session's draft, or a fresh one on the first step
func (w *UploadWizard) Current(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	draft, err := w.drafts.GetBySessionID(ctx, sessionID)
	if errors.Is(err, models.ErrDraftNotFound) {
		return models.NewUploadDraft(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return draft, nil
}

// update loads the draft under the session lock, applies fn and saves it
func (w *UploadWizard) update(ctx context.Context, sessionID, op string, fn func(*models.UploadDraft) error) (*models.UploadDraft, error) {
	ctx, span := observability.StartServiceSpan(ctx, "UploadWizard", op)
	defer span.End()

	unlock := w.lock(sessionID)
	defer unlock()

	draft, err := w.Current(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if err := fn(draft); err != nil {
		observability.RecordError(span, err)
		return draft, err
	}

	draft.UpdatedAt = w.now().UTC()
	if err := w.drafts.Save(ctx, draft); err != nil {
		observability.RecordError(span, err)
		return draft, fmt.Errorf("save draft: %w", err)
	}

	span.SetAttributes(observability.SessionID(sessionID), observability.WizardStep(draft.Step.String()))
	return draft, nil
}

func stepper(draft *models.UploadDraft) *Stepper {
	return NewStepper(models.WizardStepCount, int(draft.Step))
}

// SelectFile stages the chosen file, extracts its metadata and moves to the
// metadata step. Extraction failures leave the metadata empty but the
// wizard still advances.
func (w *UploadWizard) SelectFile(ctx context.Context, sessionID string, file io.Reader, filename string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "SelectFile", func(draft *models.UploadDraft) error {
		if draft.Step != models.StepSelect {
			return models.ErrWrongStep
		}

		staged, err := w.staging.Stage(sessionID, file, filename)
		if err != nil {
			return err
		}

		fullPath, err := w.staging.GetFullPath(staged.StoredPath)
		if err != nil {
			w.staging.Delete(staged.StoredPath)
			return err
		}
		extraction := w.metadata.ExtractMetadata(ctx, fullPath)
		staged.Orientation = extraction.Orientation

		if draft.File != nil {
			w.staging.Delete(draft.File.StoredPath)
		}

		draft.File = staged
		draft.Metadata = extraction.Metadata
		draft.Create = nil
		draft.Peaks = nil
		draft.PeaksLoaded = false
		draft.PeaksError = ""
		draft.UploadError = ""
		draft.Step = models.WizardStep(stepper(draft).Next())

		observability.WithContext(ctx).WithField("session_id", sessionID).
			Debugf("Staged %s (%d bytes) for upload", staged.OriginalName, staged.Size)
		return nil
	})
}

// AcceptMetadata turns the extracted metadata into the create request and
// moves to the peak step, looking up nearby peaks when coordinates exist.
func (w *UploadWizard) AcceptMetadata(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "AcceptMetadata", func(draft *models.UploadDraft) error {
		if draft.Step != models.StepMetadata {
			return models.ErrWrongStep
		}
		if draft.File == nil {
			return models.ErrNoFileSelected
		}

		draft.Create = models.NewSummitPhotoCreate(draft.Metadata)
		w.loadPeaks(ctx, draft)
		draft.Step = models.WizardStep(stepper(draft).Next())
		return nil
	})
}

// loadPeaks fills the draft's peak list. Lookup errors are kept on the
// draft for display rather than failing the step.
func (w *UploadWizard) loadPeaks(ctx context.Context, draft *models.UploadDraft) {
	draft.Peaks = nil
	draft.PeaksError = ""
	draft.PeaksLoaded = true

	lat, lon, ok := draft.Create.Coordinates()
	if !ok {
		return
	}

	peaks, err := w.peaks.FindNearby(ctx, lat, lon)
	if err != nil {
		observability.WithContext(ctx).Warnf("Nearby peak lookup failed: %v", err)
		draft.PeaksError = err.Error()
		return
	}
	draft.Peaks = peaks
}

// RetryPeaks repeats a failed nearby peak lookup
func (w *UploadWizard) RetryPeaks(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "RetryPeaks", func(draft *models.UploadDraft) error {
		if draft.Step != models.StepPeak || draft.Create == nil {
			return models.ErrWrongStep
		}
		draft.Create = draft.Create.WithoutPeak()
		w.loadPeaks(ctx, draft)
		return nil
	})
}

// SelectPeak attributes the photo to one of the listed nearby peaks
func (w *UploadWizard) SelectPeak(ctx context.Context, sessionID string, peakID int64) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "SelectPeak", func(draft *models.UploadDraft) error {
		if draft.Step != models.StepPeak || draft.Create == nil {
			return models.ErrWrongStep
		}

		hit, ok := models.FindPeak(draft.Peaks, peakID)
		if !ok {
			return models.ErrPeakNotFound
		}

		draft.Create = draft.Create.WithPeak(hit.Peak.ID, hit.Distance)
		trace.SpanFromContext(ctx).SetAttributes(observability.PeakID(hit.Peak.ID))
		return nil
	})
}

// ConfirmPeak moves to the upload step. Choosing a peak is optional.
func (w *UploadWizard) ConfirmPeak(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "ConfirmPeak", func(draft *models.UploadDraft) error {
		if draft.Step != models.StepPeak {
			return models.ErrWrongStep
		}
		draft.UploadError = ""
		draft.Step = models.WizardStep(stepper(draft).Next())
		return nil
	})
}

// Back returns to the previous step
func (w *UploadWizard) Back(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "Back", func(draft *models.UploadDraft) error {
		if draft.Uploaded != nil {
			return models.ErrAlreadyUploaded
		}
		steps := stepper(draft)
		if steps.IsFirst() {
			return models.ErrWrongStep
		}
		draft.UploadError = ""
		draft.Step = models.WizardStep(steps.Back())
		return nil
	})
}

// Upload sends the staged file and create request to the API. On success
// the staged file is removed and the result kept for display; on failure
// the API's message is kept and the wizard stays on the upload step.
func (w *UploadWizard) Upload(ctx context.Context, sessionID string) (*models.UploadDraft, error) {
	return w.update(ctx, sessionID, "Upload", func(draft *models.UploadDraft) error {
		if draft.Uploaded != nil {
			return models.ErrAlreadyUploaded
		}
		if draft.Step != models.StepUpload {
			return models.ErrWrongStep
		}
		if draft.File == nil {
			return models.ErrNoFileSelected
		}

		f, err := w.staging.Open(draft.File.StoredPath)
		if err != nil {
			return fmt.Errorf("open staged file: %w", err)
		}
		defer f.Close()

		withPeak := draft.Create != nil && draft.Create.PeakID != nil
		photo, err := w.uploader.Upload(ctx, apiclient.UploadRequest{
			File:        f,
			FileName:    draft.File.OriginalName,
			ContentType: draft.File.ContentType,
			Create:      draft.Create,
		})
		if err != nil {
			w.metrics.RecordPhotoUpload(ctx, withPeak, false)
			observability.WithContext(ctx).Warnf("Upload of %s failed: %v", draft.File.OriginalName, err)
			draft.UploadError = err.Error()
			return nil
		}
		w.metrics.RecordPhotoUpload(ctx, withPeak, true)

		w.staging.Delete(draft.File.StoredPath)
		draft.File = nil
		draft.UploadError = ""
		draft.Uploaded = photo
		return nil
	})
}

// Reset discards the draft and its staged file
func (w *UploadWizard) Reset(ctx context.Context, sessionID string) error {
	unlock := w.lock(sessionID)
	defer unlock()

	draft, err := w.Current(ctx, sessionID)
	if err != nil {
		return err
	}
	if draft.File != nil {
		w.staging.Delete(draft.File.StoredPath)
	}
	return w.drafts.Delete(ctx, sessionID)
}

// Forget drops the per-session lock once a session is gone
func (w *UploadWizard) Forget(sessionID string) {
	w.locks.Delete(sessionID)
}

// PendingPhoto builds the card shown on the upload step
func (w *UploadWizard) PendingPhoto(draft *models.UploadDraft) *models.SummitPhoto {
	if draft.Create == nil {
		return nil
	}
	var peak *models.Peak
	if selected := draft.SelectedPeak(); selected != nil {
		p := selected.Peak
		peak = &p
	}
	name := ""
	if draft.File != nil {
		name = draft.File.OriginalName
	}
	return draft.Create.PendingPhoto(name, peak, w.now())
}
