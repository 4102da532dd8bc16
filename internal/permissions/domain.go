package permissions

import (
	"errors"
	"strings"
	"time"

	"github.com/nexio-platform/nexio/internal/auth"
)

// Action enumerates the permission kinds resources can be granted.
type Action string

const (
	ActionView              Action = "view"
	ActionEdit              Action = "edit"
	ActionDownload          Action = "download"
	ActionShare             Action = "share"
	ActionDelete            Action = "delete"
	ActionManagePermissions Action = "manage_permissions"
)

// Actions lists every permission kind in a stable order.
func Actions() []Action {
	return []Action{ActionView, ActionEdit, ActionDownload, ActionShare, ActionDelete, ActionManagePermissions}
}

// ParseAction validates an action string from the wire.
func ParseAction(v string) (Action, error) {
	switch Action(strings.TrimSpace(strings.ToLower(v))) {
	case ActionView:
		return ActionView, nil
	case ActionEdit:
		return ActionEdit, nil
	case ActionDownload:
		return ActionDownload, nil
	case ActionShare:
		return ActionShare, nil
	case ActionDelete:
		return ActionDelete, nil
	case ActionManagePermissions:
		return ActionManagePermissions, nil
	default:
		return "", ErrInvalidArgument
	}
}

// ResourceType identifies what a grant attaches to.
type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceFolder   ResourceType = "folder"
)

// ParseResourceType validates a resource type string from the wire.
func ParseResourceType(v string) (ResourceType, error) {
	switch ResourceType(strings.TrimSpace(strings.ToLower(v))) {
	case ResourceDocument:
		return ResourceDocument, nil
	case ResourceFolder:
		return ResourceFolder, nil
	default:
		return "", ErrInvalidArgument
	}
}

// Grant is an explicit per-resource permission row. Grants are additive; there
// is no deny.
type Grant struct {
	UserID       int64
	ResourceType ResourceType
	ResourceID   int64
	Action       Action
	GrantedBy    int64
	GrantedAt    time.Time
}

// ResourceMeta is the slice of a resource row the evaluator needs.
type ResourceMeta struct {
	TenantID  int64 // 0 means global
	CreatedBy int64
	FolderID  *int64 // containing folder for documents, parent for folders
	Locked    bool
}

var (
	ErrInvalidArgument = errors.New("permissions: invalid argument")
	ErrNotAuthorized   = errors.New("permissions: not authorized")
)

// roleDefaults maps each role to the actions it may always perform
// tenant-wide, independent of ownership and explicit grants.
var roleDefaults = map[string]map[Action]struct{}{
	auth.RoleSuperAdmin:   actionSet(ActionView, ActionEdit, ActionDownload, ActionShare, ActionDelete, ActionManagePermissions),
	auth.RoleAdmin:        actionSet(ActionView, ActionEdit, ActionDownload, ActionShare, ActionDelete, ActionManagePermissions),
	auth.RoleSpecialUser:  actionSet(ActionView, ActionDownload, ActionShare),
	auth.RoleStandardUser: {},
}

// RoleAllows reports whether the role's tenant-wide defaults include action.
func RoleAllows(role string, action Action) bool {
	set, ok := roleDefaults[role]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

func actionSet(actions ...Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}
