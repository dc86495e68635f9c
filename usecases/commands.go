package usecases

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"signage-server/entities"
	"signage-server/repositories"
)

// CommandSubmission is one operator request. SubmissionID makes retries safe: a
// submission id seen before returns the records it already created.
type CommandSubmission struct {
	Target       string
	Type         string
	Value        *int
	ContentID    string
	SubmissionID string
}

type CommandSubmitResult struct {
	SubmissionID string
	Commands     []entities.Command
}

// IDs returns the command ids in device order.
func (r *CommandSubmitResult) IDs() []string {
	ids := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		ids = append(ids, c.ID)
	}
	return ids
}

type CommandsUseCase struct {
	repo     repositories.CommandRepository
	resolver *Resolver
	enqueuer Enqueuer
}

func NewCommandsUseCase(r repositories.CommandRepository, resolver *Resolver, enqueuer Enqueuer) *CommandsUseCase {
	return &CommandsUseCase{repo: r, resolver: resolver, enqueuer: enqueuer}
}

// Submit validates the command, expands the target and stores one queued record per
// resolved device.
func (uc *CommandsUseCase) Submit(req CommandSubmission) (*CommandSubmitResult, error) {
	cmdType, err := validateCommand(req)
	if err != nil {
		return nil, err
	}

	if req.SubmissionID != "" {
		existing, err := uc.repo.GetBySubmission(req.SubmissionID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return &CommandSubmitResult{SubmissionID: req.SubmissionID, Commands: existing}, nil
		}
	} else {
		req.SubmissionID = uuid.New().String()
	}

	deviceIDs, err := uc.resolver.Resolve(req.Target)
	if err != nil {
		return nil, err
	}

	cmds := make([]entities.Command, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		cmds = append(cmds, entities.Command{
			SubmissionID: req.SubmissionID,
			DeviceID:     id,
			Type:         cmdType,
			Value:        req.Value,
			ContentID:    req.ContentID,
		})
	}

	if err := uc.repo.CreateBatch(cmds); err != nil {
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
		// A concurrent retry of the same submission won the insert.
		existing, err := uc.repo.GetBySubmission(req.SubmissionID)
		if err != nil {
			return nil, err
		}
		return &CommandSubmitResult{SubmissionID: req.SubmissionID, Commands: existing}, nil
	}

	if len(deviceIDs) > 0 && uc.enqueuer != nil {
		uc.enqueuer.Enqueue(deviceIDs...)
	}
	return &CommandSubmitResult{SubmissionID: req.SubmissionID, Commands: cmds}, nil
}

// GetCommand retrieves a command by ID
func (uc *CommandsUseCase) GetCommand(id string) (*entities.Command, error) {
	return uc.repo.GetByID(id)
}

// GetDeviceCommands retrieves the latest commands of a device, newest first
func (uc *CommandsUseCase) GetDeviceCommands(deviceID string, limit int) ([]entities.Command, error) {
	return uc.repo.ListByDevice(deviceID, limit)
}

func validateCommand(req CommandSubmission) (entities.CommandType, error) {
	cmdType, ok := entities.ParseCommandType(req.Type)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommandType, req.Type)
	}
	switch {
	case cmdType.TakesLevel():
		if req.Value == nil {
			return "", fmt.Errorf("%w: %s requires a value", ErrInvalidCommandValue, cmdType)
		}
		if *req.Value < 0 || *req.Value > 100 {
			return "", fmt.Errorf("%w: %d is outside 0-100", ErrInvalidCommandValue, *req.Value)
		}
	case cmdType == entities.CommandPlayContent:
		if req.ContentID == "" {
			return "", fmt.Errorf("%w: %s requires content_id", ErrInvalidCommandValue, cmdType)
		}
	case req.Value != nil:
		return "", fmt.Errorf("%w: %s takes no value", ErrInvalidCommandValue, cmdType)
	}
	return cmdType, nil
}
