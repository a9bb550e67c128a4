package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

const uploadPath = "/upload"

var stepLabels = [models.WizardStepCount]string{"Select Photo", "Review Metadata", "Choose Peak", "Upload"}

// UploadHandler serves the upload wizard. Every action posts, updates the
// session's draft and redirects back to the wizard page.
type UploadHandler struct {
	wizard    *services.UploadWizard
	staging   *services.StagingService
	preview   *services.PreviewService
	formatter *services.MetadataFormatter
	bus       *services.EventBus
	renderer  *Renderer
	accept    string
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(
	wizard *services.UploadWizard,
	staging *services.StagingService,
	preview *services.PreviewService,
	formatter *services.MetadataFormatter,
	bus *services.EventBus,
	renderer *Renderer,
	allowedExtensions []string,
) *UploadHandler {
	return &UploadHandler{
		wizard:    wizard,
		staging:   staging,
		preview:   preview,
		formatter: formatter,
		bus:       bus,
		renderer:  renderer,
		accept:    strings.Join(append([]string{"image/*"}, allowedExtensions...), ","),
	}
}

type stepView struct {
	Number int
	Label  string
	Active bool
	Done   bool
}

type uploadView struct {
	Step          string
	Steps         []stepView
	Draft         *models.UploadDraft
	Formatted     models.FormattedMetadata
	Pending       *models.SummitPhoto
	HasPreview    bool
	Accept        string
	MaxFileSizeMB int64
}

// Page renders the wizard at the session's current step
func (h *UploadHandler) Page(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	draft, err := h.wizard.Current(r.Context(), session.ID)
	if err != nil {
		observability.WithContext(r.Context()).Errorf("Loading upload draft failed: %v", err)
		h.renderer.Error(w, r, http.StatusInternalServerError, "The upload wizard is unavailable right now.")
		return
	}

	view := uploadView{
		Step:          draft.Step.String(),
		Steps:         steps(draft),
		Draft:         draft,
		Accept:        h.accept,
		MaxFileSizeMB: h.staging.MaxFileSizeBytes() / (1024 * 1024),
		HasPreview:    draft.File != nil,
	}
	if draft.Create != nil {
		view.Formatted = h.formatter.FormatCreate(draft.Create)
	} else {
		view.Formatted = h.formatter.Format(draft.Metadata)
	}
	if draft.Step == models.StepUpload && draft.Uploaded == nil {
		view.Pending = h.wizard.PendingPhoto(draft)
	}

	h.renderer.HTML(w, r, http.StatusOK, "upload", Page{Title: "Upload Summit Photo", Nav: "upload", Data: view})
}

func steps(draft *models.UploadDraft) []stepView {
	out := make([]stepView, models.WizardStepCount)
	for i := range out {
		out[i] = stepView{
			Number: i + 1,
			Label:  stepLabels[i],
			Active: i == int(draft.Step),
			Done:   i < int(draft.Step) || (draft.Uploaded != nil && i == int(draft.Step)),
		}
	}
	return out
}

// Select stages the chosen file and moves on to its metadata
func (h *UploadHandler) Select(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())

	// leave room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.staging.MaxFileSizeBytes()+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, r, models.ErrFileTooLarge)
			return
		}
		h.fail(w, r, models.ErrEmptyFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, models.ErrEmptyFile)
		return
	}
	defer file.Close()

	if _, err := h.wizard.SelectFile(r.Context(), session.ID, file, header.Filename); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, uploadPath, http.StatusSeeOther)
}

// Accept takes the extracted metadata and looks up nearby peaks
func (h *UploadHandler) Accept(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	h.finish(w, r, stepErr(h.wizard.AcceptMetadata(r.Context(), session.ID)))
}

// RetryPeaks repeats a failed nearby peak lookup
func (h *UploadHandler) RetryPeaks(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	h.finish(w, r, stepErr(h.wizard.RetryPeaks(r.Context(), session.ID)))
}

// SelectPeak attributes the photo to a listed peak
func (h *UploadHandler) SelectPeak(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	peakID, err := strconv.ParseInt(r.PostFormValue("peak_id"), 10, 64)
	if err != nil {
		h.fail(w, r, models.ErrPeakNotFound)
		return
	}
	h.finish(w, r, stepErr(h.wizard.SelectPeak(r.Context(), session.ID, peakID)))
}

// Confirm moves from the peak step to the upload step
func (h *UploadHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	h.finish(w, r, stepErr(h.wizard.ConfirmPeak(r.Context(), session.ID)))
}

// Back returns to the previous step
func (h *UploadHandler) Back(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	h.finish(w, r, stepErr(h.wizard.Back(r.Context(), session.ID)))
}

// Submit uploads the photo. API failures stay on the draft and are shown
// on the upload step.
func (h *UploadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	draft, err := h.wizard.Upload(r.Context(), session.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if draft.Uploaded != nil {
		h.bus.Publish(r.Context(), services.Event{
			Type:      services.EventPhotoUploaded,
			SessionID: session.ID,
			Payload:   draft.Uploaded,
		})
	}
	http.Redirect(w, r, uploadPath, http.StatusSeeOther)
}

// Reset discards the draft and starts over
func (h *UploadHandler) Reset(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if err := h.wizard.Reset(r.Context(), session.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, uploadPath, http.StatusSeeOther)
}

// Preview serves a downsized JPEG of the staged file
func (h *UploadHandler) Preview(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	draft, err := h.wizard.Current(r.Context(), session.ID)
	if err != nil || draft.File == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	fullPath, err := h.staging.GetFullPath(draft.File.StoredPath)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	data, err := h.preview.RenderFile(fullPath, draft.File.Orientation)
	if err != nil {
		observability.WithContext(r.Context()).Warnf("Preview of %s failed: %v", draft.File.OriginalName, err)
		http.Error(w, "Preview unavailable", http.StatusUnsupportedMediaType)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// stepErr drops the draft returned by a wizard step
func stepErr(_ *models.UploadDraft, err error) error {
	return err
}

func (h *UploadHandler) finish(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, uploadPath, http.StatusSeeOther)
}

// fail redirects back to the wizard with the error as a flash. Input and
// state errors are shown as they are; anything else is logged.
func (h *UploadHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var photoErr models.PhotoError
	var draftErr models.DraftError
	message := err.Error()
	switch {
	case errors.As(err, &photoErr), errors.As(err, &draftErr):
	default:
		observability.WithContext(r.Context()).Errorf("Upload wizard error: %v", err)
		message = "Something went wrong. Please try again."
	}
	redirectWithFlash(w, r, uploadPath, FlashError, message)
}
