package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hivemind-app/hivemind-back/internal/auth"
	"github.com/hivemind-app/hivemind-back/internal/config"
	"github.com/hivemind-app/hivemind-back/internal/db"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrEmptyUpdate        = errors.New("nothing to update")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrOwnerGone          = errors.New("owner no longer exists")
	ErrShareOwnerGone     = errors.New("share link owner no longer exists")
	ErrTagTaken           = errors.New("tag title already exists")
)

type Service struct {
	provider *db.Provider
	hasher   *auth.Hasher
	tokens   *auth.TokenAuthority
	logger   *zap.SugaredLogger

	shareHashLen int
}

func New(provider *db.Provider, hasher *auth.Hasher, tokens *auth.TokenAuthority, logger *zap.SugaredLogger, cfg *config.Config) *Service {
	return &Service{
		provider:     provider,
		hasher:       hasher,
		tokens:       tokens,
		logger:       logger,
		shareHashLen: cfg.ShareHashLen,
	}
}
