package checkcredits

import (
	"context"

	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/entitlement/checker"
)

type CreditChecker interface {
	CheckCredits(ctx context.Context, userID string) (checker.Result, error)
}

type Service struct {
	checker CreditChecker
	logger  logger.Logger
}

func NewService(c CreditChecker, log logger.Logger) *Service {
	return &Service{checker: c, logger: log}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := s.checker.CheckCredits(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credits checked", map[string]interface{}{
		"userId": input.UserID,
		"status": string(res.Status),
	})

	return &Output{HasCredits: res.Entitled, Status: string(res.Status), Reason: res.Reason}, nil
}
