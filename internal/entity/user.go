package entity

import (
	"fmt"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// User is a minimal, illustrative domain entity: enough fields to
// exercise CreateTyped/Update/LoadMany/LoadNeighbors end to end, not a
// stand-in for a full schema-registry-generated type.
type User struct {
	UserID      idgen.TaoId `cbor:"user_id"`
	DisplayName string      `cbor:"display_name"`
	Email       string      `cbor:"email"`
}

var _ Entity = (*User)(nil)

func (u *User) EntityType() string { return "ent_user" }
func (u *User) ID() idgen.TaoId    { return u.UserID }

func (u *User) Validate() error {
	if u.DisplayName == "" {
		return taoerr.New("User.Validate", taoerr.Validation, fmt.Errorf("display_name is required"))
	}
	if u.Email == "" {
		return taoerr.New("User.Validate", taoerr.Validation, fmt.Errorf("email is required"))
	}
	return nil
}
