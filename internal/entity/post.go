package entity

import (
	"fmt"
	"time"

	"github.com/dreamware/taograph/internal/idgen"
	"github.com/dreamware/taograph/internal/taoerr"
)

// Post is the second sample domain entity, exercising the framework's
// neighbor-traversal helpers alongside User (e.g. "posts a user liked").
type Post struct {
	PostID  idgen.TaoId `cbor:"post_id"`
	Body    string      `cbor:"body"`
	Created time.Time   `cbor:"created"`
}

var _ Entity = (*Post)(nil)

func (p *Post) EntityType() string { return "ent_post" }
func (p *Post) ID() idgen.TaoId    { return p.PostID }

func (p *Post) Validate() error {
	if p.Body == "" {
		return taoerr.New("Post.Validate", taoerr.Validation, fmt.Errorf("body is required"))
	}
	if len(p.Body) > 4096 {
		return taoerr.New("Post.Validate", taoerr.Validation, fmt.Errorf("body exceeds 4096 bytes"))
	}
	return nil
}
