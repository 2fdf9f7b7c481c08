// Package provision maps verified events to collaborator invitations on the
// protected repository, and answers read-only access status queries. The
// service holds no state of its own: every decision is derived from what the
// external system reports at call time, which is what makes repeated invites
// safe.
package provision

import (
	"context"
	"net/http"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
	"shipmode-access/internal/event"
	"shipmode-access/internal/github"
)

// Directory is the slice of the external collaboration API the service
// consumes.
type Directory interface {
	Resolve(ctx context.Context, identifier string) (*github.Account, error)
	CollaboratorPermission(ctx context.Context, login string) (string, bool, error)
	CreateInvitation(ctx context.Context, inviteeID int64, permission string) (*github.InvitationResult, error)
}

// OutcomeKind tags the result of a provisioning attempt.
type OutcomeKind int

const (
	// OutcomeInvited means a new invitation was created.
	OutcomeInvited OutcomeKind = iota
	// OutcomeAlreadyMember means the account already holds access or a
	// pending invitation. A success: repeating an invite must never surface
	// as a failure.
	OutcomeAlreadyMember
	// OutcomeNotFound means no external account matches the identifier.
	OutcomeNotFound
	// OutcomeRejected means the external system refused the invitation.
	OutcomeRejected
)

// String returns the string representation of an outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInvited:
		return "invited"
	case OutcomeAlreadyMember:
		return "already_member"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "rejected"
	}
}

// Outcome is the result of a provisioning attempt. Invited and AlreadyMember
// are both successes but stay distinct so idempotent retries are observable.
// Detail carries upstream diagnostics for Rejected outcomes; it is logged
// server-side and never echoed to callers.
type Outcome struct {
	Kind   OutcomeKind
	Handle string
	Detail string
}

// AccessState is the current provisioning state of an identifier.
type AccessState int

const (
	// StateNotFound means no external account matches the identifier.
	StateNotFound AccessState = iota
	// StatePending means the account exists but is not yet a collaborator.
	// An unaccepted invitation is indistinguishable from no invitation
	// without also querying pending invites; both report Pending.
	StatePending
	// StateActive means the account is a collaborator.
	StateActive
)

// String returns the string representation of an access state
func (s AccessState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePending:
		return "pending"
	default:
		return "not_found"
	}
}

// Service provisions repository access through a Directory.
type Service struct {
	dir    Directory
	logger logging.Logger
}

// NewService creates a provisioning service backed by the given directory.
func NewService(dir Directory, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Service{
		dir:    dir,
		logger: logger,
	}
}

// Invite resolves the identifier and invites the account at the requested
// permission. A missing account and an upstream refusal are outcomes, not
// errors; an error is returned only when resolution itself fails upstream.
func (s *Service) Invite(ctx context.Context, identifier string, permission event.Permission) (*Outcome, error) {
	account, err := s.dir.Resolve(ctx, identifier)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return &Outcome{Kind: OutcomeNotFound}, nil
		}
		return nil, err
	}

	return s.InviteAccount(ctx, account, permission)
}

// InviteAccount invites a resolved account at the requested permission.
// Permission is monotonic: a request below the level already granted is
// rejected, since the invitation API has no downgrade semantics.
func (s *Service) InviteAccount(ctx context.Context, account *github.Account, permission event.Permission) (*Outcome, error) {
	current, member, err := s.dir.CollaboratorPermission(ctx, account.Login)
	if err != nil {
		return s.rejected(account.Login, err), nil
	}

	if member {
		if permissionRank(permission.String()) < permissionRank(current) {
			s.logger.Warn("Refusing permission downgrade",
				logging.Field{Key: "handle", Value: account.Login},
				logging.Field{Key: "current", Value: current},
				logging.Field{Key: "requested", Value: permission.String()},
			)
			return &Outcome{
				Kind:   OutcomeRejected,
				Handle: account.Login,
				Detail: "permission downgrade is not supported",
			}, nil
		}

		return &Outcome{Kind: OutcomeAlreadyMember, Handle: account.Login}, nil
	}

	result, err := s.dir.CreateInvitation(ctx, account.ID, invitePermission(permission))
	if err != nil {
		return s.rejected(account.Login, err), nil
	}

	switch result.StatusCode {
	case http.StatusCreated:
		s.logger.Info("Invitation created",
			logging.Field{Key: "handle", Value: account.Login},
			logging.Field{Key: "permission", Value: permission.String()},
		)
		return &Outcome{Kind: OutcomeInvited, Handle: account.Login}, nil

	case http.StatusConflict, http.StatusUnprocessableEntity:
		// Already a collaborator or already invited; the retry succeeded
		// the first time around.
		return &Outcome{Kind: OutcomeAlreadyMember, Handle: account.Login}, nil

	default:
		s.logger.Error("Invitation rejected upstream", nil,
			logging.Field{Key: "handle", Value: account.Login},
			logging.Field{Key: "status", Value: result.StatusCode},
			logging.Field{Key: "body", Value: result.Detail},
		)
		return &Outcome{
			Kind:   OutcomeRejected,
			Handle: account.Login,
			Detail: result.Detail,
		}, nil
	}
}

// Status reports the current access state for an identifier. Always
// recomputed from the external system, never cached.
func (s *Service) Status(ctx context.Context, identifier string) (AccessState, error) {
	account, err := s.dir.Resolve(ctx, identifier)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return StateNotFound, nil
		}
		return StateNotFound, err
	}

	_, member, err := s.dir.CollaboratorPermission(ctx, account.Login)
	if err != nil {
		return StateNotFound, err
	}

	if member {
		return StateActive, nil
	}
	return StatePending, nil
}

func (s *Service) rejected(handle string, err error) *Outcome {
	s.logger.Error("Upstream call failed during invitation", err,
		logging.Field{Key: "handle", Value: handle},
	)
	return &Outcome{
		Kind:   OutcomeRejected,
		Handle: handle,
		Detail: err.Error(),
	}
}

// invitePermission maps a permission level to the invitation API's naming.
func invitePermission(p event.Permission) string {
	switch p {
	case event.PermissionWrite:
		return "push"
	case event.PermissionAdmin:
		return "admin"
	default:
		return "pull"
	}
}

// permissionRank orders permission levels for the monotonicity check.
// Covers both the invitation naming (pull/push) and the naming the
// permission endpoint reports (read/write/maintain/triage).
func permissionRank(perm string) int {
	switch perm {
	case "read", "pull", "triage":
		return 1
	case "write", "push", "maintain":
		return 2
	case "admin":
		return 3
	default:
		return 0
	}
}
