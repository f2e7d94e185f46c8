package auth

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
)

// RoleSet implements creditline.RoleAuthority over fixed identity lists.
// The lists come from deployment configuration and are immutable at runtime.
type RoleSet struct {
	approvers map[string]struct{}
	services  map[string]struct{}
}

// NewRoleSet builds a RoleSet from approver and service account identities.
func NewRoleSet(approvers []string, serviceAccounts []string) *RoleSet {
	roleSet := &RoleSet{
		approvers: make(map[string]struct{}, len(approvers)),
		services:  make(map[string]struct{}, len(serviceAccounts)),
	}
	for _, approver := range approvers {
		roleSet.approvers[approver] = struct{}{}
	}
	for _, service := range serviceAccounts {
		roleSet.services[service] = struct{}{}
	}
	return roleSet
}

func (roleSet *RoleSet) IsApprover(ctx context.Context, caller creditline.Actor) (bool, error) {
	_, found := roleSet.approvers[caller.String()]
	return found, nil
}

func (roleSet *RoleSet) IsServiceAccount(ctx context.Context, caller creditline.Actor) (bool, error) {
	_, found := roleSet.services[caller.String()]
	return found, nil
}
