package usecases

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"signage-server/entities"
	"signage-server/repositories"
)

// Content describes the media being pushed. SizeBytes is nil when unknown.
type Content struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

type PushSubmission struct {
	Target       string
	Content      Content
	SubmissionID string
}

type PushSubmitResult struct {
	PushID string
	Jobs   []entities.PushJob
}

// IDs returns the job ids in device order.
func (r *PushSubmitResult) IDs() []string {
	ids := make([]string, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

type PushUseCase struct {
	repo     repositories.PushJobRepository
	resolver *Resolver
	enqueuer Enqueuer
}

func NewPushUseCase(r repositories.PushJobRepository, resolver *Resolver, enqueuer Enqueuer) *PushUseCase {
	return &PushUseCase{repo: r, resolver: resolver, enqueuer: enqueuer}
}

// SubmitPush freezes the device list of target and creates one job per device, all in
// one write. The jobs then progress independently.
func (uc *PushUseCase) SubmitPush(req PushSubmission) (*PushSubmitResult, error) {
	if req.Content.ID == "" {
		return nil, fmt.Errorf("%w: content id is required", ErrInvalidContent)
	}
	if req.Content.SizeBytes != nil && *req.Content.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrInvalidContent)
	}
	if req.Content.Name == "" {
		req.Content.Name = req.Content.ID
	}

	if req.SubmissionID != "" {
		existing, err := uc.repo.GetBySubmission(req.SubmissionID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return &PushSubmitResult{PushID: existing[0].PushID, Jobs: existing}, nil
		}
	} else {
		req.SubmissionID = uuid.New().String()
	}

	devices, err := uc.resolver.ResolveDevices(req.Target)
	if err != nil {
		return nil, err
	}

	pushID := uuid.New().String()
	jobs := make([]entities.PushJob, 0, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		jobs = append(jobs, entities.PushJob{
			PushID:       pushID,
			SubmissionID: req.SubmissionID,
			DeviceID:     d.ID,
			DeviceName:   d.DisplayName(),
			ContentID:    req.Content.ID,
			ContentName:  req.Content.Name,
			ContentType:  req.Content.Type,
			TotalBytes:   req.Content.SizeBytes,
		})
		ids = append(ids, d.ID)
	}

	if err := uc.repo.CreateBatch(jobs); err != nil {
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
		existing, err := uc.repo.GetBySubmission(req.SubmissionID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			pushID = existing[0].PushID
		}
		return &PushSubmitResult{PushID: pushID, Jobs: existing}, nil
	}

	if len(ids) > 0 && uc.enqueuer != nil {
		uc.enqueuer.Enqueue(ids...)
	}
	return &PushSubmitResult{PushID: pushID, Jobs: jobs}, nil
}

// GetJob retrieves a push job by ID
func (uc *PushUseCase) GetJob(id string) (*entities.PushJob, error) {
	return uc.repo.GetByID(id)
}

// GetPush retrieves every job of one push
func (uc *PushUseCase) GetPush(pushID string) ([]entities.PushJob, error) {
	return uc.repo.GetByPushID(pushID)
}
