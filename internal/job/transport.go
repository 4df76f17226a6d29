package job

import "github.com/ahmethakanbesel/stocksent/internal/apperror"

type GetJobRequest struct {
	ID int64
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Kind   string
	Symbol string
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	if r.Kind != "" && !Kind(r.Kind).Valid() {
		return apperror.New(apperror.BadRequest, "kind must be prices or tweets")
	}
	return nil
}
