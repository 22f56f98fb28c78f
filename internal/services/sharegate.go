package services

import (
	"context"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

// CollectionPermissions is the slice of the metadata service the share-gate
// needs. Failures anywhere in the chain deny access.
type CollectionPermissions interface {
	// EulaFlags maps each collection to its has-eula tag value; nil means
	// the tag is absent.
	EulaFlags(ctx context.Context, collectionIDs []string, token string) (map[string]*bool, error)
	GuestReadable(ctx context.Context, collectionIDs []string) (map[string]bool, error)
}

type ShareGateService interface {
	// CanViewJob decides whether user may read the job's status and results.
	CanViewJob(ctx context.Context, job *types.Job, user string, isAdmin bool, accessToken string) bool
}

type shareGateService struct {
	perms CollectionPermissions
	log   *logger.Logger
}

func NewShareGateService(perms CollectionPermissions, baseLog *logger.Logger) ShareGateService {
	return &shareGateService{
		perms: perms,
		log:   baseLog.With("service", "ShareGateService"),
	}
}

// Rules evaluate in order; the first match wins. Admins and owners always
// read. Everyone else reads only jobs whose every collection is tagged
// has-eula=false and is guest readable.
func (s *shareGateService) CanViewJob(ctx context.Context, job *types.Job, user string, isAdmin bool, accessToken string) bool {
	if isAdmin {
		return true
	}
	if user != "" && user == job.Username {
		return true
	}

	collections := job.Collections()
	if len(collections) == 0 {
		return false
	}

	flags, err := s.perms.EulaFlags(ctx, collections, accessToken)
	if err != nil {
		s.log.Warn("EULA tag lookup failed, denying access",
			"jobID", job.JobID, "user", user, "error", err)
		return false
	}
	for _, id := range collections {
		hasEula, ok := flags[id]
		if !ok || hasEula == nil || *hasEula {
			return false
		}
	}

	readable, err := s.perms.GuestReadable(ctx, collections)
	if err != nil {
		s.log.Warn("Guest permission lookup failed, denying access",
			"jobID", job.JobID, "user", user, "error", err)
		return false
	}
	for _, id := range collections {
		if !readable[id] {
			return false
		}
	}
	return true
}
