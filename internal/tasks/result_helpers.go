package tasks

func NewResult(taskID string, status Status, message string) Result {
	res := Result{
		Status: status,
		TaskID: taskID,
	}
	if message != "" {
		res.Message = message
	}
	return res
}

func PassResult(taskID string) Result {
	return NewResult(taskID, StatusPass, "")
}

func PassResultWithMessage(taskID string, message string) Result {
	return NewResult(taskID, StatusPass, message)
}

func FailResult(taskID string, message string) Result {
	return NewResult(taskID, StatusFail, message)
}

func ErrorResult(taskID string, message string) Result {
	return NewResult(taskID, StatusError, message)
}

func SkippedResult(taskID string, message string) Result {
	return NewResult(taskID, StatusSkipped, message)
}

func PassResultWithArtifacts(taskID string, message string, artifacts []string, metadata map[string]any) Result {
	res := NewResult(taskID, StatusPass, message)
	res.Artifacts = artifacts
	res.Metadata = metadata
	return res
}

func FailResultWithMetadata(taskID string, message string, metadata map[string]any) Result {
	res := NewResult(taskID, StatusFail, message)
	res.Metadata = metadata
	return res
}
