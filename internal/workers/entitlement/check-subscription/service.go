package checksubscription

import (
	"context"

	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/entitlement/checker"
)

// Checker is the part of checker.Checker this worker needs.
type Checker interface {
	Check(ctx context.Context, userID string) (checker.Result, error)
	ResolveUserID(ctx context.Context, credential string) string
}

type ServiceDependencies struct {
	Checker Checker
	Logger  logger.Logger
}

type Service struct {
	checker Checker
	logger  logger.Logger
}

func NewService(deps ServiceDependencies) *Service {
	return &Service{checker: deps.Checker, logger: deps.Logger}
}

// Execute runs the subscription check. A denial is a normal result; only upstream faults
// return an error.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	userID := input.UserID
	if userID == "" && input.AccessToken != "" {
		userID = s.checker.ResolveUserID(ctx, input.AccessToken)
	}

	res, err := s.checker.Check(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription checked", map[string]interface{}{
		"userId": userID,
		"status": string(res.Status),
		"reason": res.Reason,
	})

	return &Output{
		IsEntitled: res.Entitled,
		Status:     string(res.Status),
		Reason:     res.Reason,
		UserID:     userID,
	}, nil
}
