package user

import (
	"context"

	"github.com/trezcool/shule/core"
)

type serviceMock struct {
	*Service
}

func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) ServiceInterface {
	return &serviceMock{Service: NewService(repo, mailSvc, conf)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.IsActive != nil && !*usr.IsActive {
		return ErrInactiveAccount
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
