package model

import "errors"

// Validation errors returned by the mutation API before any store write is
// attempted. These are never retried internally (spec §7).
var (
	ErrProjectNameRequired         = errors.New("PROJECT_NAME_REQUIRED")
	ErrTaskTitleRequired           = errors.New("TASK_TITLE_REQUIRED")
	ErrSubtaskTitleRequired        = errors.New("SUBTASK_TITLE_REQUIRED")
	ErrTemplateNameRequired        = errors.New("TEMPLATE_NAME_REQUIRED")
	ErrRecurrenceRequiresDueOffset = errors.New("RECURRENCE_REQUIRES_DUE_OFFSET")
	ErrRemindOffsetAfterDue        = errors.New("REMIND_OFFSET_AFTER_DUE")
	ErrProjectNotFound             = errors.New("PROJECT_NOT_FOUND")
	ErrTaskNotFound                = errors.New("TASK_NOT_FOUND")
	ErrSettingKeyLocalOnly         = errors.New("SETTING_KEY_LOCAL_ONLY")
	ErrInvalidProjectStatus        = errors.New("INVALID_PROJECT_STATUS")
	ErrInvalidTaskStatus           = errors.New("INVALID_TASK_STATUS")
	ErrInvalidPriority             = errors.New("INVALID_PRIORITY")
	ErrInvalidRecurrence           = errors.New("INVALID_RECURRENCE")
	ErrManualMergePayloadRequired  = errors.New("MANUAL_MERGE_PAYLOAD_REQUIRED")
)
