package models

import "time"

// WizardStep indexes the upload wizard
type WizardStep int

const (
	StepSelect WizardStep = iota
	StepMetadata
	StepPeak
	StepUpload
)

// WizardStepCount is the number of upload wizard steps
const WizardStepCount = 4

var stepNames = [WizardStepCount]string{"select", "metadata", "peak", "upload"}

func (s WizardStep) String() string {
	if s < 0 || int(s) >= WizardStepCount {
		return "unknown"
	}
	return stepNames[s]
}

// StagedFile is the selected file kept on disk while the wizard runs
type StagedFile struct {
	StoredPath   string `json:"storedPath"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	Orientation  int    `json:"orientation"`
}

// UploadDraft is the upload wizard state of one session
type UploadDraft struct {
	SessionID   string             `json:"sessionId"`
	Step        WizardStep         `json:"step"`
	File        *StagedFile        `json:"file,omitempty"`
	Metadata    PhotoMetadata      `json:"metadata"`
	Create      *SummitPhotoCreate `json:"create,omitempty"`
	Peaks       []PeakWithDistance `json:"peaks,omitempty"`
	PeaksLoaded bool               `json:"peaksLoaded"`
	PeaksError  string             `json:"peaksError,omitempty"`
	Uploaded    *SummitPhoto       `json:"uploaded,omitempty"`
	UploadError string             `json:"uploadError,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// NewUploadDraft returns an empty draft positioned on the first step
func NewUploadDraft(sessionID string) *UploadDraft {
	return &UploadDraft{
		SessionID: sessionID,
		Step:      StepSelect,
		UpdatedAt: time.Now().UTC(),
	}
}

// SelectedPeak returns the peak currently chosen on the peak step
func (d *UploadDraft) SelectedPeak() *PeakWithDistance {
	if d.Create == nil || d.Create.PeakID == nil {
		return nil
	}
	if hit, ok := FindPeak(d.Peaks, *d.Create.PeakID); ok {
		return &hit
	}
	return nil
}

// IsSelected reports whether the given peak is the chosen one
func (d *UploadDraft) IsSelected(peakID int64) bool {
	return d.Create != nil && d.Create.PeakID != nil && *d.Create.PeakID == peakID
}

// DraftError is returned for operations invalid in the current wizard state
type DraftError struct {
	Message string
}

func (e DraftError) Error() string {
	return e.Message
}

var (
	ErrDraftNotFound   = DraftError{"upload draft not found"}
	ErrWrongStep       = DraftError{"operation not available on this step"}
	ErrNoFileSelected  = DraftError{"no file selected"}
	ErrPeakNotFound    = DraftError{"peak is not among the nearby peaks"}
	ErrAlreadyUploaded = DraftError{"photo has already been uploaded"}
)
